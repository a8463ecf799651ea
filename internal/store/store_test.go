package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()

	dir := t.TempDir()
	if len(opts.EncryptedKeys) > 0 && opts.KeyFile == "" {
		opts.KeyFile = filepath.Join(dir, "store.key")
	}
	s, err := Open(filepath.Join(dir, "examdesk.json"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})

	type rec struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.Set("settings", rec{Name: "a", Count: 3}))

	var got rec
	ok, err := s.Get("settings", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec{Name: "a", Count: 3}, got)
}

func TestGetAbsentKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})

	var got map[string]any
	ok, err := s.Get("missing", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Remove("k"))

	var got string
	ok, err := s.Get("k", &got)
	require.NoError(t, err)
	require.False(t, ok)

	// Removing again is a no-op.
	require.NoError(t, s.Remove("k"))
}

func TestEncryptedValueRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{EncryptedKeys: []string{"credential"}})

	require.NoError(t, s.Set("credential", map[string]string{"token": "secret"}))

	// On disk the value must not contain the plaintext.
	data, err := os.ReadFile(s.path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret")

	var got map[string]string
	ok, err := s.Get("credential", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "secret", got["token"])
}

func TestTamperedEncryptedValueIsMalformed(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{EncryptedKeys: []string{"credential"}})
	require.NoError(t, s.Set("credential", "payload"))

	s.mu.Lock()
	s.snapshot["credential"] = json.RawMessage(`"bm90IGEgcmVhbCBjaXBoZXJ0ZXh0"`)
	s.mu.Unlock()

	var got string
	_, err := s.Get("credential", &got)
	require.ErrorIs(t, err, ErrMalformed)
}

func waitFor(t *testing.T, ch <-chan json.RawMessage) json.RawMessage {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return nil
	}
}

// externalWrite mimics a second process replacing the store file.
func externalWrite(t *testing.T, path string, doc map[string]json.RawMessage) {
	t.Helper()
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestExternalChangeNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	require.NoError(t, s.Set("other", 1))

	changes := make(chan json.RawMessage, 4)
	s.OnExternalChange("session", func(raw json.RawMessage) { changes <- raw })

	externalWrite(t, s.path, map[string]json.RawMessage{
		"other":   json.RawMessage(`1`),
		"session": json.RawMessage(`{"user":"alice"}`),
	})

	raw := waitFor(t, changes)
	require.JSONEq(t, `{"user":"alice"}`, string(raw))
}

func TestExternalRemovalDeliversNil(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	require.NoError(t, s.Set("session", map[string]string{"user": "alice"}))

	changes := make(chan json.RawMessage, 4)
	s.OnExternalChange("session", func(raw json.RawMessage) { changes <- raw })

	externalWrite(t, s.path, map[string]json.RawMessage{})

	raw := waitFor(t, changes)
	require.Nil(t, raw)
}

func TestOwnWritesDoNotNotify(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})

	changes := make(chan json.RawMessage, 4)
	s.OnExternalChange("session", func(raw json.RawMessage) { changes <- raw })

	require.NoError(t, s.Set("session", "mine"))

	select {
	case <-changes:
		t.Fatal("self-originated write must not notify")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestMalformedExternalFileIsIgnored(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	require.NoError(t, s.Set("session", "kept"))

	changes := make(chan json.RawMessage, 4)
	s.OnExternalChange("session", func(raw json.RawMessage) { changes <- raw })

	require.NoError(t, os.WriteFile(s.path, []byte("{not json"), 0o600))

	select {
	case <-changes:
		t.Fatal("malformed external write must not notify")
	case <-time.After(500 * time.Millisecond):
	}

	// Local state survives the bad write.
	var got string
	ok, err := s.Get("session", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "kept", got)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Options{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
