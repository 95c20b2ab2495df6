package observer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"worldgen/internal/mapgen"
	"worldgen/internal/world"
)

type FrameType string

const (
	FrameChunkDelta FrameType = "chunkDelta"
	FrameGeneration FrameType = "generation"
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Type      FrameType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Payload   json.RawMessage `json:"payload"`
}

// Generation announces a freshly generated world. Viewers drop what they hold
// and bootstrap again.
type Generation struct {
	ID     uuid.UUID `json:"id"`
	Seed   int64     `json:"seed"`
	Chunks int       `json:"chunks"`
	Caves  int       `json:"caves"`
	Blocks int       `json:"blocks"`
}

const subscriberBuffer = 256

type subscriber struct {
	out  chan []byte
	gone chan struct{}
	once sync.Once
}

func (s *subscriber) drop() {
	s.once.Do(func() { close(s.gone) })
}

// Feed batches world changes per chunk and fans them out to subscribers.
// It implements mapgen.ChangeSink.
type Feed struct {
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu      deadlock.Mutex
	pending *deltaAccumulator
	seq     uint64
	nextID  uint64
	subs    map[uint64]*subscriber
}

func NewFeed(interval time.Duration, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Feed{
		log:      logger.With("component", "observer"),
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		pending:  newDeltaAccumulator(),
		subs:     make(map[uint64]*subscriber),
	}
}

func (f *Feed) BlockChanged(change world.BlockChange) {
	f.mu.Lock()
	f.pending.add(change)
	f.mu.Unlock()
}

// Listener reports finished generation passes to the feed.
func (f *Feed) Listener() mapgen.Listener {
	return mapgen.ListenerFuncs{
		OnServerComplete: f.generationComplete,
		OnClientComplete: f.generationComplete,
	}
}

// generationComplete discards changes that belong to the previous world and
// tells every subscriber to start over.
func (f *Feed) generationComplete(summary mapgen.GenerationSummary) {
	payload, err := json.Marshal(Generation{
		ID:     summary.ID,
		Seed:   summary.Seed,
		Chunks: summary.Chunks,
		Caves:  summary.Caves,
		Blocks: summary.Blocks,
	})
	if err != nil {
		f.log.Error("encode generation frame", "err", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending.reset()
	f.publishLocked(FrameGeneration, payload)
}

// Run flushes pending changes every interval until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.Flush()
			return
		case <-ticker.C:
			f.Flush()
		}
	}
}

// Flush publishes one frame per dirty chunk and reports how many it sent.
func (f *Feed) Flush() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	seq := f.seq
	deltas := f.pending.flush(&seq, f.now())
	for _, delta := range deltas {
		payload, err := json.Marshal(delta)
		if err != nil {
			f.log.Error("encode chunk delta", "chunk", delta.ChunkX, "err", err)
			continue
		}
		f.publishLocked(FrameChunkDelta, payload)
	}
	return len(deltas)
}

// publishLocked numbers and sends one frame. A subscriber whose buffer is
// full has fallen behind the sequence and is dropped.
func (f *Feed) publishLocked(typ FrameType, payload json.RawMessage) {
	frame := Frame{Type: typ, Timestamp: f.now(), Seq: f.seq, Payload: payload}
	f.seq++
	data, err := json.Marshal(frame)
	if err != nil {
		f.log.Error("encode frame", "type", typ, "err", err)
		return
	}
	for id, sub := range f.subs {
		select {
		case sub.out <- data:
		default:
			f.log.Warn("observer too slow, dropping", "subscriber", id)
			delete(f.subs, id)
			sub.drop()
		}
	}
}

// Subscribe registers a new frame consumer. The gone channel closes when the
// feed drops the subscriber; cancel unregisters it.
func (f *Feed) Subscribe() (frames <-chan []byte, gone <-chan struct{}, cancel func()) {
	sub := &subscriber{
		out:  make(chan []byte, subscriberBuffer),
		gone: make(chan struct{}),
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = sub
	f.mu.Unlock()

	cancel = func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.drop()
	}
	return sub.out, sub.gone, cancel
}

// Seq is the sequence number the next frame will carry.
func (f *Feed) Seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Subscribers is the number of attached consumers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Pending is the number of cells waiting for the next flush.
func (f *Feed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.pending()
}
