package alert

import "testing"

func TestBatchingAccumulatesUntilEnd(t *testing.T) {
	a := NewDefault()
	a.StartBatching()
	a.Raise("hw", "fs %s over threshold", "/mnt/fs")
	a.Raise("lw", "fs back under threshold")
	if got := len(a.Batch()); got != 2 {
		t.Fatalf("batch length = %d, want 2", got)
	}
	a.EndBatching()
	if got := len(a.Batch()); got != 0 {
		t.Fatalf("batch should be cleared after EndBatching, got %d", got)
	}
}

func TestRaiseOutsideBatchDoesNotAccumulate(t *testing.T) {
	a := NewDefault()
	a.Raise("hw", "fs over threshold")
	if got := len(a.Batch()); got != 0 {
		t.Fatalf("non-batched raise must not accumulate, got %d", got)
	}
}
