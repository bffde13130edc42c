package official

import (
	"crypto/md5" // the mcp-remote token cache naming scheme, not crypto
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
)

// tokenFileSuffixes are the per-URL files mcp-remote keeps in its auth dirs.
var tokenFileSuffixes = []string{"_tokens.json", "_client_info.json", "_code_verifier.txt"}

// urlHash is the mcp-remote token cache key for a URL.
func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// ClearTokenCacheForURL deletes the three mcp-remote token files for url in
// every ~/.mcp-auth/mcp-remote-* directory. File errors are non-fatal; the
// deletedFiles counter reflects what was actually removed.
func ClearTokenCacheForURL(url string) map[string]any {
	hash := urlHash(url)
	searched := []string{}
	deleted := 0

	home, err := os.UserHomeDir()
	if err == nil {
		pattern := filepath.Join(home, ".mcp-auth", "mcp-remote-*")
		dirs, _ := filepath.Glob(pattern)
		sort.Strings(dirs)
		for _, dir := range dirs {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
			searched = append(searched, dir)
			for _, suffix := range tokenFileSuffixes {
				if err := os.Remove(filepath.Join(dir, hash+suffix)); err == nil {
					deleted++
				}
			}
		}
	}

	return map[string]any{
		"status":       "reauth_triggered",
		"urlHash":      hash,
		"deletedFiles": deleted,
		"searchedDirs": searched,
	}
}

// Reauth disconnects the current session (best effort) and clears the token
// cache for this manager's URL, forcing a fresh OAuth flow on the next
// connect.
func (m *SessionManager) Reauth() map[string]any {
	m.mu.Lock()
	m.teardown()
	m.mu.Unlock()
	return ClearTokenCacheForURL(m.url)
}

// URL returns the upstream URL this manager authenticates against.
func (m *SessionManager) URL() string { return m.url }
