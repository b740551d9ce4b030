package chunking

import (
	"context"
	"iter"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the pause between two emitted events.
const DefaultInterval = 100 * time.Millisecond

// EventKind discriminates stream events.
type EventKind int

const (
	// EventDelta carries one fragment of the plan.
	EventDelta EventKind = iota
	// EventDone terminates the stream.
	EventDone
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is a single element of a fragment stream.
type Event struct {
	Kind EventKind
	// Index is the position of the fragment in the plan. For EventDone it is
	// the number of deltas that preceded it.
	Index    int
	Fragment string
}

// Streamer replays fragment plans as paced event streams.
type Streamer struct {
	interval time.Duration
}

// NewStreamer creates a streamer that pauses interval after each delta.
// A non-positive interval disables pacing.
func NewStreamer(interval time.Duration) *Streamer {
	return &Streamer{interval: interval}
}

// Stream emits one EventDelta per fragment, in order, followed by exactly one
// EventDone, and then closes the returned channel. A nil sequence yields only
// EventDone.
//
// Events are produced lazily: fragments are pulled one at a time and the
// producer waits for the consumer to receive each event before pacing towards
// the next one. Each stream owns its own
// limiter, so concurrent streams never delay each other. Cancelling ctx stops
// the producer promptly; no further deltas and no EventDone are sent and the
// channel is closed.
func (s *Streamer) Stream(ctx context.Context, fragments iter.Seq[string]) <-chan Event {
	events := make(chan Event)
	limiter := s.newLimiter()

	go func() {
		defer close(events)

		index := 0
		if fragments != nil {
			for fragment := range fragments {
				if !emit(ctx, limiter, events, Event{Kind: EventDelta, Index: index, Fragment: fragment}) {
					return
				}
				index++
			}
		}
		emit(ctx, limiter, events, Event{Kind: EventDone, Index: index})
	}()

	return events
}

func (s *Streamer) newLimiter() *rate.Limiter {
	if s.interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(s.interval), 1)
}

// emit waits for the next pacing slot and hands ev to the consumer. It reports
// false when ctx ended first.
func emit(ctx context.Context, limiter *rate.Limiter, events chan<- Event, ev Event) bool {
	if err := limiter.Wait(ctx); err != nil || ctx.Err() != nil {
		return false
	}

	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
