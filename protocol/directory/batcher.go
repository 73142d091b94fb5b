package directory

import (
	"context"
	"time"

	"github.com/coniks-sys/keywitness/protocol"
)

// A Batcher groups updates arriving one at a time into batches. A
// batch is sealed when it holds max updates or when timeout has
// passed since its first update, whichever comes first.
type Batcher struct {
	max     int
	timeout time.Duration
	seal    func([]protocol.Update)
	in      chan protocol.Update
}

// NewBatcher returns a Batcher handing every sealed batch to seal.
// seal runs on the goroutine calling Run.
func NewBatcher(max int, timeout time.Duration, seal func([]protocol.Update)) *Batcher {
	if max < 1 {
		max = 1
	}
	return &Batcher{
		max:     max,
		timeout: timeout,
		seal:    seal,
		in:      make(chan protocol.Update),
	}
}

// Add queues u for the next batch. It blocks until Run accepts it or
// ctx is done.
func (b *Batcher) Add(ctx context.Context, u protocol.Update) error {
	select {
	case b.in <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run collects updates until ctx is done, then seals what is left.
func (b *Batcher) Run(ctx context.Context) {
	var (
		batch []protocol.Update
		timer *time.Timer
		fire  <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, fire = nil, nil
		}
		if len(batch) > 0 {
			b.seal(batch)
			batch = nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case u := <-b.in:
			batch = append(batch, u)
			if len(batch) == 1 {
				timer = time.NewTimer(b.timeout)
				fire = timer.C
			}
			if len(batch) >= b.max {
				flush()
			}
		case <-fire:
			timer, fire = nil, nil
			flush()
		}
	}
}
