// Package mock provides a test double for the [processor.Processor] interface.
//
// Processor records every call and lets tests script failures:
//
//	p := &mock.Processor{ProcessErr: errors.New("overload")}
//	// every Process call now fails
//
// When Transform is nil, Process returns a copy of its input.
package mock

import (
	"sync"

	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// Processor is a mock implementation of [processor.Processor].
type Processor struct {
	mu sync.Mutex

	// ProcessErr, if non-nil, is returned by every Process call.
	ProcessErr error

	// Transform, if non-nil, computes the output of Process.
	Transform func(audio.Frame) audio.Frame

	// PushReferenceErr, if non-nil, is returned by every PushReference call.
	PushReferenceErr error

	// --- Call records ---

	// References holds a copy of every frame passed to PushReference.
	References []audio.Frame

	// ProcessCallCount is the number of times Process was called.
	ProcessCallCount int

	// Delays records every SetEstimatedDelay argument in order.
	Delays []int

	// Strengths records every SetStrength argument in order.
	Strengths []processor.Strength

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// PushReference implements [processor.Processor].
func (p *Processor) PushReference(frame audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.References = append(p.References, frame.Clone())
	return p.PushReferenceErr
}

// Process implements [processor.Processor].
func (p *Processor) Process(frame audio.Frame) (audio.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ProcessCallCount++
	if p.ProcessErr != nil {
		return nil, p.ProcessErr
	}
	if p.Transform != nil {
		return p.Transform(frame), nil
	}
	return frame.Clone(), nil
}

// SetEstimatedDelay implements [processor.Processor].
func (p *Processor) SetEstimatedDelay(ms int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Delays = append(p.Delays, ms)
	return nil
}

// SetStrength implements [processor.Processor].
func (p *Processor) SetStrength(s processor.Strength) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Strengths = append(p.Strengths, s)
	return nil
}

// Close implements [processor.Processor].
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCallCount++
	return nil
}

// SetProcessErr replaces ProcessErr. Thread-safe.
func (p *Processor) SetProcessErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ProcessErr = err
}

// Snapshot returns copies of the call records. Thread-safe.
func (p *Processor) Snapshot() (refs int, processed int, delays []int, strengths []processor.Strength) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.References), p.ProcessCallCount, append([]int(nil), p.Delays...), append([]processor.Strength(nil), p.Strengths...)
}

// Factory returns a [processor.Factory] that always hands out p.
func (p *Processor) Factory() processor.Factory {
	return func(processor.Config) (processor.Processor, error) { return p, nil }
}

var _ processor.Processor = (*Processor)(nil)
