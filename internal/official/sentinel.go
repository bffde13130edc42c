package official

import (
	"os"
	"path/filepath"
)

const sentinelName = "oh-my-linear-reconnect"

// SentinelPath is the zero-byte marker a terminating process leaves so the
// next startup eagerly reconnects (and thereby re-runs the OAuth flow).
func SentinelPath() string {
	return filepath.Join(os.TempDir(), sentinelName)
}

// WriteReconnectSentinel drops the sentinel file. Errors are returned for
// logging only; a failed write just means the next start connects lazily.
func WriteReconnectSentinel() error {
	f, err := os.Create(SentinelPath())
	if err != nil {
		return err
	}
	return f.Close()
}

// ConsumeReconnectSentinel reports whether the sentinel was present and
// removes it.
func ConsumeReconnectSentinel() bool {
	path := SentinelPath()
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_ = os.Remove(path)
	return true
}
