// Package passthrough provides a [processor.Processor] that returns every
// frame unchanged. It is the default when no DSP backend is linked in and
// keeps the engine's scheduling observable on any host.
package passthrough

import (
	"fmt"
	"sync"

	"github.com/MrWong99/duplex/pkg/audio"
	"github.com/MrWong99/duplex/pkg/provider/processor"
)

// Processor copies frames through and tracks the settings it was given.
type Processor struct {
	mu         sync.Mutex
	cfg        processor.Config
	strength   processor.Strength
	delayMs    int
	references int
	closed     bool
}

// New returns a pass-through processor. It satisfies [processor.Factory].
func New(cfg processor.Config) (processor.Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("passthrough: %w", err)
	}
	return &Processor{cfg: cfg, strength: cfg.EchoStrength}, nil
}

// PushReference implements [processor.Processor].
func (p *Processor) PushReference(frame audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(frame) != p.cfg.FrameSamples() {
		return fmt.Errorf("passthrough: reference has %d samples, want %d", len(frame), p.cfg.FrameSamples())
	}
	p.references++
	return nil
}

// Process implements [processor.Processor].
func (p *Processor) Process(frame audio.Frame) (audio.Frame, error) {
	if want := p.cfg.FrameSamples(); len(frame) != want {
		return nil, fmt.Errorf("passthrough: frame has %d samples, want %d", len(frame), want)
	}
	return frame.Clone(), nil
}

// SetEstimatedDelay implements [processor.Processor].
func (p *Processor) SetEstimatedDelay(ms int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delayMs = ms
	return nil
}

// SetStrength implements [processor.Processor].
func (p *Processor) SetStrength(s processor.Strength) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strength = s
	return nil
}

// Close implements [processor.Processor].
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// State returns the current strength, delay and reference count.
func (p *Processor) State() (processor.Strength, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.strength, p.delayMs, p.references
}

var _ processor.Processor = (*Processor)(nil)
