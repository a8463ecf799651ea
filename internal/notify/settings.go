package notify

// SettingsKey is the store key the settings record persists under.
const SettingsKey = "examdesk.notifications"

// Settings are the user's notification preferences, persisted as a flat
// record.
type Settings struct {
	ExamReminders       bool `json:"exam_reminders"`
	ResultNotifications bool `json:"result_notifications"`
	SystemUpdates       bool `json:"system_updates"`
	SoundEnabled        bool `json:"sound_enabled"`

	// DesktopNotifications requires an explicit permission grant, so it
	// defaults off while everything else defaults on.
	DesktopNotifications bool `json:"desktop_notifications"`
}

// DefaultSettings returns the all-on defaults, minus desktop
// notifications.
func DefaultSettings() Settings {
	return Settings{
		ExamReminders:       true,
		ResultNotifications: true,
		SystemUpdates:       true,
		SoundEnabled:        true,
	}
}

// allows reports whether the settings admit an event of the given kind.
// Generic notifications are ungated.
func (s Settings) allows(kind EventKind) bool {
	switch kind {
	case KindExamReminder:
		return s.ExamReminders
	case KindResultReady:
		return s.ResultNotifications
	case KindSystemUpdate:
		return s.SystemUpdates
	default:
		return true
	}
}

// SettingsUpdate is a partial settings change. Nil fields stay as they
// are.
type SettingsUpdate struct {
	ExamReminders        *bool
	ResultNotifications  *bool
	SystemUpdates        *bool
	SoundEnabled         *bool
	DesktopNotifications *bool
}

func (u SettingsUpdate) apply(s *Settings) {
	if u.ExamReminders != nil {
		s.ExamReminders = *u.ExamReminders
	}
	if u.ResultNotifications != nil {
		s.ResultNotifications = *u.ResultNotifications
	}
	if u.SystemUpdates != nil {
		s.SystemUpdates = *u.SystemUpdates
	}
	if u.SoundEnabled != nil {
		s.SoundEnabled = *u.SoundEnabled
	}
	if u.DesktopNotifications != nil {
		s.DesktopNotifications = *u.DesktopNotifications
	}
}
