package main

import "sync/atomic"

// syntheticProcessor stands in for real PCM capture/playback (out of
// scope, per SPEC_FULL.md's non-goals): it just counts samples processed,
// giving the demo something observable without pulling in an audio
// backend.
type syntheticProcessor struct {
	samplesProcessed int64
}

func (p *syntheticProcessor) ProcessFrame(samples int) bool {
	atomic.AddInt64(&p.samplesProcessed, int64(samples))
	return true
}

func (p *syntheticProcessor) SamplesProcessed() int64 {
	return atomic.LoadInt64(&p.samplesProcessed)
}
