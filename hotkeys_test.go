package latchkv

import "testing"

func TestHotKeyTrackerEstimateIncreasesWithObservations(t *testing.T) {
	tr := NewHotKeyTracker(1000)
	before := tr.Estimate("k")
	for i := 0; i < 5; i++ {
		tr.Observe("k")
	}
	after := tr.Estimate("k")
	if after <= before {
		t.Fatalf("estimate did not increase: before=%d after=%d", before, after)
	}
}

func TestHotKeyEstimateDisabledByDefault(t *testing.T) {
	c := NewCache(Config{MaxSize: 1000}).(*cacheImpl)
	defer c.Close()
	c.Set("k", []byte("v"))
	c.Get("k")
	if c.HotKeyEstimate("k") != 0 {
		t.Fatal("HotKeyEstimate should be 0 when TrackHotKeys is disabled")
	}
}

func TestHotKeyEstimateTracksGets(t *testing.T) {
	c := NewCache(Config{MaxSize: 1000, TrackHotKeys: true}).(*cacheImpl)
	defer c.Close()
	c.Set("k", []byte("v"))
	for i := 0; i < 3; i++ {
		c.Get("k")
	}
	if c.HotKeyEstimate("k") == 0 {
		t.Fatal("expected a nonzero hot-key estimate after several Gets")
	}
}
