package audioio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/clock"
)

// Scheduled describes where a chunk landed on the playback timeline.
type Scheduled struct {
	Start time.Time
	End   time.Time
}

// PlaybackQueue schedules PCM chunks back to back on a Sink. Each chunk
// starts at max(previous end, now), so chunks never overlap and never
// leave a gap while audio is still queued.
type PlaybackQueue struct {
	sink   Sink
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	nextStart time.Time
	timers    map[uint64]clock.Timer
	seq       uint64
	gen       uint64
	onDrained func()
}

// NewPlaybackQueue creates a queue writing to sink. A nil clock uses the
// wall clock.
func NewPlaybackQueue(sink Sink, clk clock.Clock, logger *slog.Logger) *PlaybackQueue {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackQueue{
		sink:   sink,
		clock:  clk,
		logger: logger.With("component", "audioio.playback_queue"),
		timers: make(map[uint64]clock.Timer),
	}
}

// OnDrained registers fn to run when the last scheduled chunk finishes.
// fn runs on the clock's timer goroutine.
func (q *PlaybackQueue) OnDrained(fn func()) {
	q.mu.Lock()
	q.onDrained = fn
	q.mu.Unlock()
}

// Enqueue writes chunk to the sink and schedules it after everything
// already queued.
func (q *PlaybackQueue) Enqueue(ctx context.Context, chunk AudioChunk) (Scheduled, error) {
	if chunk.SampleRate == 0 {
		chunk.SampleRate = q.sink.Config().SampleRate
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.sink.Write(ctx, chunk); err != nil {
		return Scheduled{}, err
	}

	now := q.clock.Now()
	start := q.nextStart
	if start.Before(now) {
		start = now
	}
	end := start.Add(chunk.Duration())
	q.nextStart = end

	q.seq++
	id, gen := q.seq, q.gen
	q.timers[id] = q.clock.AfterFunc(end.Sub(now), func() { q.finished(id, gen) })

	return Scheduled{Start: start, End: end}, nil
}

func (q *PlaybackQueue) finished(id, gen uint64) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return
	}
	delete(q.timers, id)
	var fn func()
	if len(q.timers) == 0 {
		fn = q.onDrained
	}
	q.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Interrupt stops playback immediately: the sink is cleared, pending
// chunks are forgotten and the playback clock resets to zero. OnDrained is
// not called.
func (q *PlaybackQueue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.gen++
	q.nextStart = time.Time{}

	if err := q.sink.Clear(); err != nil {
		q.logger.Warn("sink clear failed", "error", err)
	}
}

// Clear is Interrupt under the name used on reconnect.
func (q *PlaybackQueue) Clear() { q.Interrupt() }

// Len returns the number of chunks scheduled but not yet finished.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// NextStart returns where the next chunk would begin if enqueued before
// the clock passes it. It is the zero time after an interrupt.
func (q *PlaybackQueue) NextStart() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextStart
}
