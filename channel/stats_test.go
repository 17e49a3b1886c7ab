package channel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/xraph/hail/channel"
)

func TestStats_RecordAndSnapshot(t *testing.T) {
	t.Parallel()

	var s channel.Stats
	s.RecordAttempt(true, 120*time.Millisecond)
	s.RecordAttempt(false, 2*time.Second)
	s.RecordAttempt(true, 90*time.Millisecond)

	snap := s.Snapshot()
	if snap.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", snap.Attempts)
	}
	if snap.Successes != 2 {
		t.Errorf("successes = %d, want 2", snap.Successes)
	}
	if snap.Failures != 1 {
		t.Errorf("failures = %d, want 1", snap.Failures)
	}
	if snap.LastLatency != 90*time.Millisecond {
		t.Errorf("last latency = %v, want 90ms", snap.LastLatency)
	}
}

func TestStats_Reset(t *testing.T) {
	t.Parallel()

	var s channel.Stats
	s.RecordAttempt(true, time.Millisecond)
	s.Reset()

	snap := s.Snapshot()
	if snap.Attempts != 0 || snap.Successes != 0 || snap.Failures != 0 {
		t.Errorf("counters not zeroed: %+v", snap)
	}
}

func TestStats_ConcurrentRecording(t *testing.T) {
	t.Parallel()

	var s channel.Stats
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordAttempt(true, time.Millisecond)
		}()
	}
	wg.Wait()

	if got := s.Snapshot().Attempts; got != 50 {
		t.Errorf("attempts = %d, want 50", got)
	}
}
