// Package filter decides whether a raw message matches a search query and the
// optional header/body patterns configured for local mailboxes.
package filter

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/jobmail-export/source"
)

// Options captures the filtering configuration.
type Options struct {
	// Query holds OR-combined Subject terms; empty matches everything.
	Query         string
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Filter holds the query terms and compiled patterns.
type Filter struct {
	terms         []string
	includeHeader []*regexp.Regexp
	includeBody   []*regexp.Regexp
	excludeHeader []*regexp.Regexp
	excludeBody   []*regexp.Regexp
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	return &Filter{
		terms:         source.Terms(opts.Query),
		includeHeader: includeHeader,
		includeBody:   includeBody,
		excludeHeader: excludeHeader,
		excludeBody:   excludeBody,
	}, nil
}

// Match reports whether raw passes the filter. A message must have a Subject
// containing one of the query terms, match at least one include pattern when
// any are set, and match no exclude pattern.
func (f *Filter) Match(raw []byte) bool {
	header, body := SplitRawMessage(raw)

	if len(f.terms) > 0 && !source.MatchSubject(Subject(header), f.terms) {
		return false
	}

	headerText, bodyText := string(header), string(body)

	if len(f.includeHeader) > 0 || len(f.includeBody) > 0 {
		if !matchAny(f.includeHeader, headerText) && !matchAny(f.includeBody, bodyText) {
			return false
		}
	}

	return !matchAny(f.excludeHeader, headerText) && !matchAny(f.excludeBody, bodyText)
}

// Subject returns the unfolded, RFC 2047 decoded Subject of a raw header
// block, or "" when the block cannot be parsed. Encoded words that fail to
// decode are returned as-is.
func Subject(header []byte) string {
	r := bufio.NewReader(bytes.NewReader(append(bytes.Clone(header), "\r\n\r\n"...)))
	h, err := textproto.ReadHeader(r)
	if err != nil {
		return ""
	}
	mh := mail.Header{Header: message.Header{Header: h}}
	subject, _ := mh.Subject()
	return subject
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
