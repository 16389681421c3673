// Package mbox retrieves messages from a local mbox file.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/jobmail-export/filter"
	"github.com/dhcgn/jobmail-export/source"
)

type Options struct {
	Path          string
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Retriever implements source.Retriever over an mbox file. Identifiers are
// 1-based message positions in the file. Search scans the whole file and keeps
// the matching messages in memory for Fetch.
type Retriever struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	matches map[string][]byte
}

var _ source.Retriever = (*Retriever)(nil)

func NewRetriever(opts Options, logger *slog.Logger) (*Retriever, error) {
	opts.Path = strings.TrimSpace(opts.Path)
	if opts.Path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	// Compile once up front so bad patterns fail before any file access.
	if _, err := filter.New(filterOptions(opts, "")); err != nil {
		return nil, err
	}
	return &Retriever{opts: opts, logger: logger}, nil
}

func (r *Retriever) Search(ctx context.Context, query string) ([]string, error) {
	f, err := filter.New(filterOptions(r.opts, query))
	if err != nil {
		return nil, err
	}

	file, err := os.Open(r.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	matches := make(map[string][]byte)
	var ids []string

	for pos := 1; ; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("message %d: %w", pos, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return nil, fmt.Errorf("message %d read: %w", pos, err)
		}

		if !f.Match(raw) {
			continue
		}

		id := strconv.Itoa(pos)
		matches[id] = raw
		ids = append(ids, id)
	}

	r.mu.Lock()
	r.matches = matches
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Debug("mbox search finished", "path", r.opts.Path, "query", query, "matches", len(ids))
	}
	return ids, nil
}

// Fetch returns a message found by the most recent Search.
func (r *Retriever) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	raw, ok := r.matches[id]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("mbox message %s: %w", id, source.ErrNotFound)
	}
	return raw, nil
}

func filterOptions(opts Options, query string) filter.Options {
	return filter.Options{
		Query:         query,
		IncludeHeader: opts.IncludeHeader,
		IncludeBody:   opts.IncludeBody,
		ExcludeHeader: opts.ExcludeHeader,
		ExcludeBody:   opts.ExcludeBody,
	}
}
