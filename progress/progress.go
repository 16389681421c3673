package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/jobmail-export/stats"
)

// Bar shows a progress bar sized by the search result. It is only active
// when logLevel is "info".
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Update advances the bar for one event.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeSearched:
		b.start(evt.Count)
	case stats.EventTypeClassified, stats.EventTypeSkipped:
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.MessageID != "" {
			b.pb.UpdateTitle("Processing: " + truncate(evt.MessageID, 40))
		}
		if evt.Type == stats.EventTypeSkipped && evt.Err != nil {
			pterm.Warning.Printf("Skipped %s: %v\n", evt.MessageID, evt.Err)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

func (b *Bar) start(total int) {
	b.total = total
	pterm.Info.Printf("Found %d messages matching the query.\n", total)
	if total == 0 {
		return
	}

	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Processing emails").
		Start()
	if err != nil {
		return
	}
	b.pb = pb
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	_, _ = b.pb.Stop()
	b.pb = nil
}

// Subscriber feeds events into the bar until the stream ends.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Reporter subscribes a Bar and a stats collector and prints a summary when
// the run ends.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

// Summary returns the statistics collected so far.
func (r *Reporter) Summary() stats.Summary {
	return r.collector.Snapshot()
}

func (r *Reporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	r.collector.Run(ctx, events)
	if ctx.Err() != nil {
		return nil
	}

	summary := r.collector.Snapshot()
	if r.logger != nil {
		r.logger.Debug("progress summary", summary.LogAttrs()...)
	}

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", time.Since(r.started).Round(time.Millisecond))
	pterm.Info.Printf("Matched: %d\n", summary.Matched)
	pterm.Info.Printf("Classified: %d\n", summary.Classified)
	pterm.Info.Printf("Skipped (undecodable): %d\n", summary.Skipped)
	for _, c := range stats.Top(summary.ByStatus, len(summary.ByStatus)) {
		pterm.Info.Printf("  %s: %d\n", c.Key, c.Value)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	return nil
}
