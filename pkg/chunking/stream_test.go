package chunking

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish in time")
		}
	}
}

func TestStreamEmitsDeltasThenDone(t *testing.T) {
	streamer := NewStreamer(0)

	events := collect(t, streamer.Stream(context.Background(), Fragments("HelloWorld", 3)))

	require.Len(t, events, 4)
	assert.Equal(t, Event{Kind: EventDelta, Index: 0, Fragment: "Hell"}, events[0])
	assert.Equal(t, Event{Kind: EventDelta, Index: 1, Fragment: "oWo"}, events[1])
	assert.Equal(t, Event{Kind: EventDelta, Index: 2, Fragment: "rld"}, events[2])
	assert.Equal(t, Event{Kind: EventDone, Index: 3}, events[3])
}

func TestStreamKeepsEmptyFragments(t *testing.T) {
	streamer := NewStreamer(0)

	events := collect(t, streamer.Stream(context.Background(), Fragments("", 4)))

	require.Len(t, events, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, EventDelta, events[i].Kind)
		assert.Empty(t, events[i].Fragment)
	}
	assert.Equal(t, EventDone, events[4].Kind)
}

func TestStreamWithNoFragmentsOnlyCompletes(t *testing.T) {
	streamer := NewStreamer(0)

	events := collect(t, streamer.Stream(context.Background(), nil))

	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Kind)
}

func TestStreamPacesEvents(t *testing.T) {
	interval := 20 * time.Millisecond
	streamer := NewStreamer(interval)

	start := time.Now()
	events := collect(t, streamer.Stream(context.Background(), Fragments("abcd", 4)))
	elapsed := time.Since(start)

	require.Len(t, events, 5)
	// The first delta is immediate; each following event waits one interval.
	assert.GreaterOrEqual(t, elapsed, 4*interval-5*time.Millisecond)
}

func TestStreamStopsOnCancel(t *testing.T) {
	streamer := NewStreamer(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	events := streamer.Stream(ctx, Fragments("abcdefghij", 10))

	first, ok := <-events
	require.True(t, ok)
	assert.Equal(t, "a", first.Fragment)

	cancel()

	rest := collect(t, events)
	for _, ev := range rest {
		assert.NotEqual(t, EventDone, ev.Kind, "cancelled stream must not complete")
	}
	assert.Less(t, len(rest), 9)
}

func TestStreamAbandonedConsumerDoesNotLeak(t *testing.T) {
	streamer := NewStreamer(0)
	ctx, cancel := context.WithCancel(context.Background())

	events := streamer.Stream(ctx, Fragments("abc", 3))
	<-events
	cancel()

	select {
	case <-drain(events):
	case <-time.After(time.Second):
		t.Fatal("producer did not exit after cancellation")
	}
}

func TestStreamHugePlanCancelledContextReturnsPromptly(t *testing.T) {
	streamer := NewStreamer(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()

	events := collect(t, streamer.Stream(ctx, Fragments("hi", 200_000_000)))

	elapsed := time.Since(start)
	runtime.ReadMemStats(&after)

	assert.Empty(t, events)
	assert.Less(t, elapsed, time.Second)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestStreamHugePlanStopsMidway(t *testing.T) {
	streamer := NewStreamer(0)
	ctx, cancel := context.WithCancel(context.Background())

	events := streamer.Stream(ctx, Fragments("hi", 200_000_000))
	for i := 0; i < 3; i++ {
		ev := <-events
		assert.Equal(t, i, ev.Index)
	}
	cancel()

	select {
	case <-drain(events):
	case <-time.After(time.Second):
		t.Fatal("producer did not exit after cancellation")
	}
}

func drain(events <-chan Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range events {
		}
	}()
	return done
}

func TestConcurrentStreamsAreIndependent(t *testing.T) {
	interval := 30 * time.Millisecond
	streamer := NewStreamer(interval)

	const streams = 8
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < streams; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range streamer.Stream(context.Background(), Fragments("abc", 3)) {
			}
		}()
	}
	wg.Wait()

	// Serialised pacing would take streams*3*interval.
	assert.Less(t, time.Since(start), streams*3*interval/2)
}

func TestStreamEventCountProperty(t *testing.T) {
	streamer := NewStreamer(0)

	rapid.Check(t, func(rt *rapid.T) {
		message := rapid.String().Draw(rt, "message")
		eventCount := rapid.IntRange(1, 32).Draw(rt, "event_count")

		var deltas []string
		dones := 0
		for ev := range streamer.Stream(context.Background(), Fragments(message, eventCount)) {
			switch ev.Kind {
			case EventDelta:
				assert.Zero(rt, dones, "delta after done")
				deltas = append(deltas, ev.Fragment)
			case EventDone:
				dones++
			}
		}

		assert.Len(rt, deltas, eventCount)
		assert.Equal(rt, 1, dones)
		assert.Equal(rt, message, strings.Join(deltas, ""))
	})
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "delta", EventDelta.String())
	assert.Equal(t, "done", EventDone.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
