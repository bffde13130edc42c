package official

import (
	"os"
	"path/filepath"
	"testing"
)

const linearURL = "https://mcp.linear.app/mcp"

// linearURL's md5, the mcp-remote cache key.
const linearHash = "fcc436b0d1e0a1ed9a2b15bbd638eb13"

func TestURLHash(t *testing.T) {
	if got := urlHash(linearURL); got != linearHash {
		t.Errorf("urlHash = %q, want %q", got, linearHash)
	}
}

func writeTokenFiles(t *testing.T, dir, hash string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, suffix := range tokenFileSuffixes {
		if err := os.WriteFile(filepath.Join(dir, hash+suffix), []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestClearTokenCacheForURL(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	oldDir := filepath.Join(home, ".mcp-auth", "mcp-remote-0.1.1")
	newDir := filepath.Join(home, ".mcp-auth", "mcp-remote-0.1.2")
	writeTokenFiles(t, oldDir, urlHash(linearURL))
	writeTokenFiles(t, newDir, urlHash(linearURL))

	// Another service's tokens must survive.
	otherFile := filepath.Join(newDir, urlHash("https://mcp.notion.com/mcp")+"_tokens.json")
	if err := os.WriteFile(otherFile, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	result := ClearTokenCacheForURL(linearURL)

	if result["status"] != "reauth_triggered" {
		t.Errorf("status = %v", result["status"])
	}
	if result["urlHash"] != urlHash(linearURL) {
		t.Errorf("urlHash = %v", result["urlHash"])
	}
	if result["deletedFiles"] != 6 {
		t.Errorf("deletedFiles = %v, want 6 (three per version dir)", result["deletedFiles"])
	}

	dirs := result["searchedDirs"].([]string)
	if len(dirs) != 2 || dirs[0] != oldDir || dirs[1] != newDir {
		t.Errorf("searchedDirs = %v, want sorted [%s %s]", dirs, oldDir, newDir)
	}

	if _, err := os.Stat(otherFile); err != nil {
		t.Error("unrelated token file must not be deleted")
	}
	for _, suffix := range tokenFileSuffixes {
		if _, err := os.Stat(filepath.Join(newDir, urlHash(linearURL)+suffix)); !os.IsNotExist(err) {
			t.Errorf("token file %s%s should be gone", urlHash(linearURL), suffix)
		}
	}
}

func TestClearTokenCacheMissingFiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".mcp-auth", "mcp-remote-0.1.1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	result := ClearTokenCacheForURL(linearURL)
	if result["deletedFiles"] != 0 {
		t.Errorf("deletedFiles = %v, want 0", result["deletedFiles"])
	}
	if dirs := result["searchedDirs"].([]string); len(dirs) != 1 {
		t.Errorf("searchedDirs = %v", dirs)
	}
}

func TestClearTokenCacheNoAuthDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	result := ClearTokenCacheForURL(linearURL)
	if result["deletedFiles"] != 0 {
		t.Errorf("deletedFiles = %v", result["deletedFiles"])
	}
	if dirs := result["searchedDirs"].([]string); len(dirs) != 0 {
		t.Errorf("searchedDirs = %v, want empty", dirs)
	}
}
