package progress

import (
	"context"
	"errors"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"

	"github.com/dhcgn/jobmail-export/stats"
)

type fakeStream struct {
	names []string
	fns   []func(context.Context, <-chan stats.Event) error
}

func (f *fakeStream) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	f.names = append(f.names, name)
	f.fns = append(f.fns, fn)
}

func TestBar_DisabledBelowInfo(t *testing.T) {
	b := New("debug")
	b.Update(stats.Event{Type: stats.EventTypeSearched, Count: 5})
	assert.Nil(t, b.pb)
	assert.Equal(t, 0, b.total)
	b.Stop()
}

func TestBar_Subscriber(t *testing.T) {
	pterm.DisableOutput()
	defer pterm.EnableOutput()

	b := New("info")
	events := make(chan stats.Event, 8)
	events <- stats.Event{Type: stats.EventTypeSearched, Count: 3}
	events <- stats.Event{Type: stats.EventTypeClassified, MessageID: "1", Detail: "offer"}
	events <- stats.Event{Type: stats.EventTypeSkipped, MessageID: "2", Err: errors.New("bad mime")}
	close(events)

	err := b.Subscriber(context.Background(), events)
	assert.NoError(t, err)
	assert.Equal(t, 3, b.total)
	assert.Nil(t, b.pb)
}

func TestNewReporter_SubscribesOnlyWhenEnabled(t *testing.T) {
	stream := &fakeStream{}
	NewReporter(stream, New("warn"), nil)
	assert.Empty(t, stream.names)

	NewReporter(stream, New("info"), nil)
	assert.Equal(t, []string{"progress-bar", "progress-stats"}, stream.names)
}

func TestReporter_CollectsSummary(t *testing.T) {
	pterm.DisableOutput()
	defer pterm.EnableOutput()

	stream := &fakeStream{}
	r := NewReporter(stream, New("info"), nil)

	events := make(chan stats.Event, 4)
	events <- stats.Event{Type: stats.EventTypeSearched, Count: 1}
	events <- stats.Event{Type: stats.EventTypeClassified, MessageID: "1", Detail: "interview"}
	close(events)

	assert.NoError(t, stream.fns[1](context.Background(), events))
	assert.Equal(t, 1, r.Summary().Classified)
	assert.Equal(t, map[string]int{"interview": 1}, r.Summary().ByStatus)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
