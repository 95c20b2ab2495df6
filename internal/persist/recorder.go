package persist

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"worldgen/internal/mapgen"
	"worldgen/internal/world"
)

type recorderOp struct {
	entry world.Entry
	reset *Meta
}

// Recorder writes world changes to a Journal from its own goroutine. It
// implements mapgen.ChangeSink, whose calls must not wait on disk.
type Recorder struct {
	journal *Journal
	log     *slog.Logger

	mu    deadlock.Mutex
	queue []recorderOp
	wake  chan struct{}
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func NewRecorder(j *Journal, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		journal: j,
		log:     logger.With("component", "journal"),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) BlockChanged(change world.BlockChange) {
	r.push(recorderOp{entry: world.Entry{Key: change.Key, Type: change.After}})
}

// Listener rebinds the journal whenever the world is regenerated.
func (r *Recorder) Listener() mapgen.Listener {
	return mapgen.ListenerFuncs{OnServerComplete: r.generationComplete}
}

func (r *Recorder) generationComplete(summary mapgen.GenerationSummary) {
	r.push(recorderOp{reset: &Meta{Seed: summary.Seed, GenerationID: summary.ID}})
}

func (r *Recorder) push(op recorderOp) {
	r.mu.Lock()
	r.queue = append(r.queue, op)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) take() []recorderOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := r.queue
	r.queue = nil
	return ops
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.wake:
			r.write(r.take())
		case <-r.stop:
			r.write(r.take())
			return
		}
	}
}

// write applies ops in order, batching consecutive block entries into one
// transaction.
func (r *Recorder) write(ops []recorderOp) {
	var batch []world.Entry
	flush := func() {
		if err := r.journal.RecordBatch(batch); err != nil {
			r.log.Error("journal write failed", "blocks", len(batch), "err", err)
		}
		batch = batch[:0]
	}
	for _, op := range ops {
		if op.reset != nil {
			flush()
			if err := r.journal.Reset(op.reset.Seed, op.reset.GenerationID); err != nil {
				r.log.Error("journal reset failed", "err", err)
			}
			continue
		}
		batch = append(batch, op.entry)
	}
	flush()
}

// Rebind queues a reset for a world generated outside the recorder's view.
func (r *Recorder) Rebind(seed int64, id uuid.UUID) {
	r.push(recorderOp{reset: &Meta{Seed: seed, GenerationID: id}})
}

// Close writes everything queued so far and stops the recorder.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
