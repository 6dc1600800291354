package orchestration

import (
	"sync"
	"time"
)

// PerformanceSample is one measured response: the time between the end of a
// local utterance and the first remote sentence that followed it.
type PerformanceSample struct {
	UtteranceEnd  time.Time
	ResponseStart time.Time
	Latency       time.Duration
}

type performanceTracker struct {
	mu           sync.Mutex
	utteranceEnd time.Time
	samples      []PerformanceSample
}

func (p *performanceTracker) recordUtteranceEnd(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.utteranceEnd = at
}

// recordResponseStart closes the measurement opened by the last utterance
// end. Later sentences of the same response are not measured.
func (p *performanceTracker) recordResponseStart(at time.Time) (PerformanceSample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.utteranceEnd.IsZero() {
		return PerformanceSample{}, false
	}

	sample := PerformanceSample{
		UtteranceEnd:  p.utteranceEnd,
		ResponseStart: at,
		Latency:       at.Sub(p.utteranceEnd),
	}
	p.samples = append(p.samples, sample)
	p.utteranceEnd = time.Time{}
	return sample, true
}

func (p *performanceTracker) average() (time.Duration, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.samples) == 0 {
		return 0, 0
	}
	var total time.Duration
	for _, sample := range p.samples {
		total += sample.Latency
	}
	return total / time.Duration(len(p.samples)), len(p.samples)
}

func (p *performanceTracker) snapshot() []PerformanceSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PerformanceSample(nil), p.samples...)
}
