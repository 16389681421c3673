package stats

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

type Stage string

const (
	StageSearch   Stage = "search"
	StageFetch    Stage = "fetch"
	StageDecode   Stage = "decode"
	StageClassify Stage = "classify"
)

type EventType string

const (
	EventTypeSearched   EventType = "searched"
	EventTypeFetched    EventType = "fetched"
	EventTypeClassified EventType = "classified"
	EventTypeSkipped    EventType = "skipped"
	EventTypeError      EventType = "error"
)

// Event is emitted by the pipeline for every step of every message.
// Count is set on searched events; Detail carries the status of classified
// messages.
type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Count     int
	Err       error
	Detail    string
}

type Summary struct {
	Matched    int
	Fetched    int
	Classified int
	Skipped    int
	Errors     int
	LastError  error
	ByStatus   map[string]int
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"matched", s.Matched,
		"fetched", s.Fetched,
		"classified", s.Classified,
		"skipped", s.Skipped,
		"errors", s.Errors,
	}
	for _, c := range Top(s.ByStatus, len(s.ByStatus)) {
		attrs = append(attrs, "status."+c.Key, c.Value)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{summary: Summary{ByStatus: make(map[string]int)}}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

// Snapshot returns a copy of the current summary.
func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary := c.summary
	summary.ByStatus = maps.Clone(c.summary.ByStatus)
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeSearched:
		c.summary.Matched += evt.Count
	case EventTypeFetched:
		c.summary.Fetched++
	case EventTypeClassified:
		c.summary.Classified++
		c.summary.ByStatus[evt.Detail]++
	case EventTypeSkipped:
		c.summary.Skipped++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// Count is one entry of a frequency table.
type Count struct {
	Key   string
	Value int
}

// Top returns up to limit entries of m ordered by descending count, ties
// broken by key.
func Top(m map[string]int, limit int) []Count {
	pairs := make([]Count, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Count{k, v})
	}

	slices.SortFunc(pairs, func(a, b Count) int {
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, c := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, c.Key, c.Value)
	}
}
