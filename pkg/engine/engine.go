package engine

import (
	"context"
	"time"

	"msgledger/pkg/alias"
	"msgledger/pkg/cache"
	"msgledger/pkg/frame"
	"msgledger/pkg/ledger"
	"msgledger/pkg/logger"
	"msgledger/pkg/models"
	"msgledger/pkg/resolve"
	"msgledger/pkg/telemetry"
)

// Engine is the event processor: it drains raw frames from the intake
// queue, decodes them, and dispatches new-message and delete-message
// deltas against the cache and the ledger. Exactly one worker consumes
// the queue, so the decode/process pipeline itself stays single-threaded
// even though producers are concurrent.
type Engine struct {
	dec      *frame.Decoder
	cache    *cache.Cache
	tables   *alias.Tables
	resolver *resolve.Resolver
	ledger   *ledger.Ledger
	heading  resolve.HeadingProbe
	queue    *frameQueue

	now func() time.Time
}

// Options bundles the injected collaborators.
type Options struct {
	Decoder   *frame.Decoder
	Cache     *cache.Cache
	Tables    *alias.Tables
	Resolver  *resolve.Resolver
	Ledger    *ledger.Ledger
	Heading   resolve.HeadingProbe
	QueueSize int
}

func New(opts Options) *Engine {
	heading := opts.Heading
	if heading == nil {
		heading = func() (string, bool) { return "", false }
	}
	return &Engine{
		dec:      opts.Decoder,
		cache:    opts.Cache,
		tables:   opts.Tables,
		resolver: opts.Resolver,
		ledger:   opts.Ledger,
		heading:  heading,
		queue:    newFrameQueue(opts.QueueSize),
		now:      time.Now,
	}
}

// EnqueueFrame copies one raw transport payload into the engine queue.
// Returns ErrQueueFull when the bounded queue cannot accept it.
func (e *Engine) EnqueueFrame(payload []byte, trace string) error {
	telemetry.FramesReceived.Inc()
	if err := e.queue.tryEnqueue(payload, trace); err != nil {
		telemetry.FramesDropped.Inc()
		return err
	}
	return nil
}

// Run drains the queue until ctx is done. Call from a single goroutine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-e.queue.out():
			e.handleFrame(it)
		}
	}
}

func (e *Engine) handleFrame(it *frameItem) {
	defer it.release()
	envs, ok := e.dec.Decode(it.payload())
	if !ok {
		// expected and frequent: undecodable frames are simply skipped
		telemetry.FramesUnparsable.Inc()
		logger.Debug("frame_unparsable", "trace", it.trace, "len", len(it.payload()))
		return
	}
	telemetry.FramesDecoded.Inc()
	e.Process(envs)
}

// Process dispatches every delta in a decoded batch. Exported so tests
// and callers with already-decoded batches can drive the pipeline
// synchronously.
func (e *Engine) Process(envs []frame.Envelope) {
	for _, env := range envs {
		for _, d := range env.Deltas {
			telemetry.Deltas.WithLabelValues(d.Kind()).Inc()
			switch dd := d.(type) {
			case frame.NewMessage:
				e.handleNewMessage(dd)
			case frame.DeleteMessage:
				e.handleDeleteMessage(dd)
			}
		}
	}
}

func (e *Engine) handleNewMessage(d frame.NewMessage) {
	now := e.now().UnixMilli()
	ts := d.TS
	if ts == 0 {
		ts = now
	}
	rec := models.ActiveMessage{
		ID:          d.ID,
		Text:        d.Text,
		TS:          ts,
		SenderAlias: d.Sender,
		ContentType: d.ContentType,
		Origin:      models.OriginLive,
		StoredAt:    now,
	}
	rec.AddThreadAlias(d.Thread)
	rec.AddThreadAlias(d.ThreadAlt)
	// Put makes room first; an insert never fails
	e.cache.Put(rec)

	// probe the rendered heading as a name guess, but only for a thread id
	// with no entry: a guess must never overwrite a known name
	if d.Thread != "" {
		if _, known := e.tables.Threads.Lookup(d.Thread); !known {
			if h, ok := e.heading(); ok && h != "" {
				e.tables.Threads.RegisterIfAbsent(d.Thread, h)
			}
		}
	}
	logger.Debug("message_cached", "id", d.ID, "thread", d.Thread)
}

func (e *Engine) handleDeleteMessage(d frame.DeleteMessage) {
	rec, ok := e.cache.Get(d.MessageID)
	if !ok {
		// evicted or never observed: expected under normal operation
		telemetry.CorrelationMisses.Inc()
		logger.Debug("delete_without_live_record", "id", d.MessageID)
		return
	}
	entry := e.resolver.Resolve(rec, d.Thread, e.now())
	if e.ledger.Append(entry) {
		logger.Info("deletion_recorded",
			"id", entry.ID,
			"thread", entry.ThreadName,
			"sender", entry.SenderAlias)
	}
	e.cache.Delete(d.MessageID)
}

// ActiveMessages returns the current cache contents for the read API.
func (e *Engine) ActiveMessages() []models.ActiveMessage {
	return e.cache.Snapshot()
}

// DroppedFrames reports frames rejected because the queue was full.
func (e *Engine) DroppedFrames() uint64 {
	return e.queue.Dropped()
}
