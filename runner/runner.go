package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhcgn/jobmail-export/model"
	"github.com/dhcgn/jobmail-export/source"
	"github.com/dhcgn/jobmail-export/stats"
)

// Op names the retrieval step that failed.
type Op string

const (
	OpSearch Op = "search"
	OpFetch  Op = "fetch"
)

// RetrievalError aborts a run. MessageID is empty for search failures.
type RetrievalError struct {
	Op        Op
	MessageID string
	Err       error
}

func (e *RetrievalError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s message %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

type Decoder interface {
	Decode(raw []byte) (model.DecodedMessage, error)
}

type Classifier interface {
	Classify(msg model.DecodedMessage) model.ClassifiedRecord
}

type Options struct {
	Query string
	// Workers bounds concurrent fetch, decode and classify. Values below 1
	// mean sequential processing.
	Workers int
}

const eventBuffer = 128

type Runner struct {
	opts       Options
	logger     *slog.Logger
	retriever  source.Retriever
	decoder    Decoder
	classifier Classifier

	ctx    context.Context
	cancel context.CancelFunc

	subsMu sync.Mutex
	subs   []chan stats.Event

	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeEventsOnce sync.Once
	since           time.Time
}

func New(ctx context.Context, opts Options, retriever source.Retriever, dec Decoder, cls Classifier, logger *slog.Logger) (*Runner, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever must not be nil")
	}
	if dec == nil {
		return nil, fmt.Errorf("decoder must not be nil")
	}
	if cls == nil {
		return nil, fmt.Errorf("classifier must not be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Runner{
		opts:       opts,
		logger:     logger,
		retriever:  retriever,
		decoder:    dec,
		classifier: cls,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// EmitEvent delivers evt to every subscriber.
func (r *Runner) EmitEvent(evt stats.Event) {
	r.subsMu.Lock()
	subs := r.subs
	r.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// SubscribeStats registers fn to receive every event of the run on its own
// channel. Subscribers must be registered before Run.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, eventBuffer)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

// Run searches once, then fetches, decodes and classifies every match. The
// returned records follow retrieval order. Messages that fail to decode are
// skipped; any retrieval failure aborts the run with a *RetrievalError.
func (r *Runner) Run() ([]model.ClassifiedRecord, error) {
	r.since = time.Now()

	records, err := r.process()
	r.fail(err)

	r.closeEvents()
	r.statsWG.Wait()
	r.cancel()

	err = r.firstErr()
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return nil, err
	}

	r.logger.Info("pipeline completed", "duration", duration, "records", len(records))
	return records, nil
}

func (r *Runner) process() ([]model.ClassifiedRecord, error) {
	ids, err := r.retriever.Search(r.ctx, r.opts.Query)
	if err != nil {
		r.EmitEvent(stats.Event{Stage: stats.StageSearch, Type: stats.EventTypeError, Err: err})
		return nil, &RetrievalError{Op: OpSearch, Err: err}
	}
	r.EmitEvent(stats.Event{Stage: stats.StageSearch, Type: stats.EventTypeSearched, Count: len(ids)})
	r.logger.Info("search finished", "query", r.opts.Query, "matches", len(ids))

	slots := make([]*model.ClassifiedRecord, len(ids))

	g, ctx := errgroup.WithContext(r.ctx)
	g.SetLimit(r.opts.Workers)
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		i, id := i, id
		g.Go(func() error {
			rec, err := r.processOne(ctx, id)
			if err != nil {
				return err
			}
			slots[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]model.ClassifiedRecord, 0, len(slots))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// processOne returns a nil record for messages that were skipped.
func (r *Runner) processOne(ctx context.Context, id string) (*model.ClassifiedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RetrievalError{Op: OpFetch, MessageID: id, Err: err}
	}

	raw, err := r.retriever.Fetch(ctx, id)
	if err != nil {
		r.EmitEvent(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeError, MessageID: id, Err: err})
		return nil, &RetrievalError{Op: OpFetch, MessageID: id, Err: err}
	}
	r.EmitEvent(stats.Event{Stage: stats.StageFetch, Type: stats.EventTypeFetched, MessageID: id})

	msg, err := r.decoder.Decode(raw)
	if err != nil {
		r.logger.Warn("skipping undecodable message", "messageID", id, "err", err)
		r.EmitEvent(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypeSkipped, MessageID: id, Err: err})
		return nil, nil
	}

	rec := r.classifier.Classify(msg)
	r.logger.Debug("classified message", "messageID", id, "status", rec.Status, "company", rec.Company)
	r.EmitEvent(stats.Event{Stage: stats.StageClassify, Type: stats.EventTypeClassified, MessageID: id, Detail: rec.Status})
	return &rec, nil
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for _, ch := range r.subs {
			close(ch)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}

func (r *Runner) firstErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}
