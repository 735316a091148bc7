package codec2

import "testing"

func TestBitrateModeRoundTrip(t *testing.T) {
	modes := []Mode{Mode3200, Mode2400, Mode1600, Mode1400, Mode1300, Mode1200, Mode700C}
	for _, m := range modes {
		bps := BitrateForMode(m)
		got, ok := ModeForBitrate(bps)
		if !ok {
			t.Fatalf("ModeForBitrate(%d) not found for mode %v", bps, m)
		}
		if got != m {
			t.Errorf("round trip mismatch: mode %v -> %d bps -> mode %v", m, bps, got)
		}
	}
}

func TestModeForUnsupportedBitrate(t *testing.T) {
	if _, ok := ModeForBitrate(9999); ok {
		t.Fatal("expected unsupported bitrate to report ok=false")
	}
}
