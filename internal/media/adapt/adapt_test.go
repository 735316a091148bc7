package adapt

import "testing"

func TestNextBitrateStepsDown(t *testing.T) {
	got := NextBitrate(32000, 0.10, 50)
	if want := 24000; got != want {
		t.Errorf("high loss: NextBitrate = %d, want %d", got, want)
	}
}

func TestNextBitrateStepsUp(t *testing.T) {
	got := NextBitrate(32000, 0.00, 20)
	if want := 48000; got != want {
		t.Errorf("good conditions: NextBitrate = %d, want %d", got, want)
	}
}

func TestNextBitrateHoldsOnZeroRTT(t *testing.T) {
	if got := NextBitrate(32000, 0.00, 0); got != 32000 {
		t.Errorf("zero RTT: NextBitrate = %d, want 32000 (hold)", got)
	}
}

func TestNextBitrateHoldsOnHighRTT(t *testing.T) {
	if got := NextBitrate(32000, 0.00, 200); got != 32000 {
		t.Errorf("high RTT: NextBitrate = %d, want 32000 (hold)", got)
	}
}

func TestNextBitrateCannotExceedMax(t *testing.T) {
	top := Ladder[len(Ladder)-1]
	if got := NextBitrate(top, 0.00, 10); got != top {
		t.Errorf("at max rung: NextBitrate(%d) = %d, want %d", top, got, top)
	}
}

func TestNextBitrateCannotGoBelowMin(t *testing.T) {
	bottom := Ladder[0]
	if got := NextBitrate(bottom, 0.99, 500); got != bottom {
		t.Errorf("at min rung: NextBitrate(%d) = %d, want %d", bottom, got, bottom)
	}
}

func TestStepIndexExactRungs(t *testing.T) {
	for i, step := range Ladder {
		if got := stepIndex(step); got != i {
			t.Errorf("stepIndex(%d) = %d, want %d", step, got, i)
		}
	}
}

func TestEWMASeedsOnFirstSample(t *testing.T) {
	if got := EWMA(0, 100, 0.2); got != 100 {
		t.Errorf("EWMA seed = %f, want 100", got)
	}
}

func TestEWMABlendsSubsequentSamples(t *testing.T) {
	got := EWMA(100, 200, 0.2)
	want := 0.2*200 + 0.8*100
	if got != want {
		t.Errorf("EWMA = %f, want %f", got, want)
	}
}

func TestTargetJitterMillisDefaultsWhenNoMeasurement(t *testing.T) {
	if got := TargetJitterMillis(0, 0); got != 60 {
		t.Errorf("TargetJitterMillis(0,0) = %d, want 60", got)
	}
}

func TestTargetJitterMillisClampedHighLoss(t *testing.T) {
	got := TargetJitterMillis(1000, 0.10)
	if got != 640 {
		t.Errorf("TargetJitterMillis clamp = %d, want 640", got)
	}
}
