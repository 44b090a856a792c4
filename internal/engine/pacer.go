package engine

import "time"

// pacer paces a loop to a fixed interval using absolute deadlines. A late
// iteration moves the deadline to now instead of letting lateness compound.
type pacer struct {
	interval time.Duration
	next     time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval, now: time.Now, after: time.After}
}

// wait blocks until the next deadline. It returns false if done is closed
// first.
func (p *pacer) wait(done <-chan struct{}) bool {
	now := p.now()
	if p.next.IsZero() {
		p.next = now
	}
	p.next = p.next.Add(p.interval)

	d := p.next.Sub(now)
	if d <= 0 {
		p.next = now
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	select {
	case <-done:
		return false
	case <-p.after(d):
		return true
	}
}
