package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// DesktopNotifier emits an OS-level notification. Display duration and
// dismissal are the OS's business.
type DesktopNotifier interface {
	Notify(title, message string) error
}

// SoundPlayer plays the short alert chirp. Audible, short, non-blocking
// is the whole contract; the exact waveform is not.
type SoundPlayer interface {
	Play() error
}

// Permissions probes whether OS-level notifications may be shown.
type Permissions interface {
	Request(ctx context.Context) (bool, error)
}

// beeepNotifier is the production DesktopNotifier.
type beeepNotifier struct{}

func NewDesktopNotifier() DesktopNotifier { return beeepNotifier{} }

func (beeepNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// chirpPlayer plays a brief two-tone alert (C5 then E5).
type chirpPlayer struct{}

func NewSoundPlayer() SoundPlayer { return chirpPlayer{} }

func (chirpPlayer) Play() error {
	if err := beeep.Beep(523.25, 120); err != nil {
		return err
	}
	return beeep.Beep(659.25, 120)
}

// beeepPermissions probes by attempting a real notification: there is
// no separate permission API on the desktop, so a successful display is
// the grant.
type beeepPermissions struct{}

func NewPermissions() Permissions { return beeepPermissions{} }

func (beeepPermissions) Request(ctx context.Context) (bool, error) {
	if err := beeep.Notify("Notifications enabled", "You will be notified about exams and results.", ""); err != nil {
		return false, err
	}
	return true, nil
}
