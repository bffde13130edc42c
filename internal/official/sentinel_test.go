package official

import "testing"

func TestReconnectSentinelRoundTrip(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	if ConsumeReconnectSentinel() {
		t.Fatal("sentinel should be absent initially")
	}
	if err := WriteReconnectSentinel(); err != nil {
		t.Fatalf("WriteReconnectSentinel: %v", err)
	}
	if !ConsumeReconnectSentinel() {
		t.Fatal("sentinel should be present after write")
	}
	if ConsumeReconnectSentinel() {
		t.Fatal("consume must remove the sentinel")
	}
}
