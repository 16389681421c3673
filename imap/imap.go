// Package imap retrieves messages from an IMAP mailbox.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/jobmail-export/source"
)

var (
	ErrInvalidID = errors.New("invalid imap uid")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
}

// Retriever implements source.Retriever over a single IMAP connection that is
// opened on first use. Commands are serialized.
type Retriever struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
	// aborted is set when a canceled command closed the connection.
	aborted atomic.Bool
}

var _ source.Retriever = (*Retriever)(nil)

func NewRetriever(opts Options, logger *slog.Logger) (*Retriever, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Username == "" {
		return nil, fmt.Errorf("imap user is empty")
	}
	return &Retriever{opts: opts, logger: logger}, nil
}

// Search runs UID SEARCH with the query terms OR-combined as Subject header
// criteria and returns the matching UIDs in ascending order.
func (r *Retriever) Search(ctx context.Context, query string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer r.watch(ctx, client)()

	data, err := client.UIDSearch(SubjectCriteria(source.Terms(query)), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}

	uids := data.AllUIDs()
	slices.Sort(uids)

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	if r.logger != nil {
		r.logger.Debug("imap search finished", "mailbox", r.mailbox(), "query", query, "matches", len(ids))
	}
	return ids, nil
}

// Fetch returns BODY.PEEK[] for the message with the given UID, leaving the
// \Seen flag untouched.
func (r *Retriever) Fetch(ctx context.Context, id string) ([]byte, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer r.watch(ctx, client)()

	section := &imapv2.FetchItemBodySection{Peek: true}
	cmd := client.Fetch(imapv2.UIDSetNum(imapv2.UID(n)), &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})

	msg := cmd.Next()
	if msg == nil {
		if err := cmd.Close(); err != nil {
			return nil, fmt.Errorf("uid fetch %s: %w", id, err)
		}
		return nil, fmt.Errorf("uid %s: %w", id, source.ErrNotFound)
	}

	buf, err := msg.Collect()
	closeErr := cmd.Close()
	if err != nil {
		return nil, fmt.Errorf("collect uid %s: %w", id, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("uid fetch %s: %w", id, closeErr)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("uid %s: empty body section", id)
	}
	return raw, nil
}

// Close logs out and closes the connection if one was opened. The returned
// error is the LOGOUT failure, if any.
func (r *Retriever) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client := r.client
	if client == nil {
		return nil
	}
	r.client = nil

	var logoutErr error
	if !r.aborted.Load() {
		if logoutErr = client.Logout().Wait(); logoutErr != nil && r.logger != nil {
			r.logger.Warn("imap logout failed", "err", logoutErr)
		}
	}
	if err := client.Close(); err != nil && r.logger != nil {
		r.logger.Debug("imap connection closed", "err", err)
	}
	return logoutErr
}

// SubjectCriteria builds a search matching any of terms in the Subject
// header. No terms matches every message.
func SubjectCriteria(terms []string) *imapv2.SearchCriteria {
	switch len(terms) {
	case 0:
		return &imapv2.SearchCriteria{}
	case 1:
		return subjectHas(terms[0])
	}

	return &imapv2.SearchCriteria{
		Or: [][2]imapv2.SearchCriteria{{*subjectHas(terms[0]), *SubjectCriteria(terms[1:])}},
	}
}

func subjectHas(term string) *imapv2.SearchCriteria {
	return &imapv2.SearchCriteria{
		Header: []imapv2.SearchCriteriaHeaderField{{Key: "Subject", Value: term}},
	}
}

// connect must be called with r.mu held.
func (r *Retriever) connect(ctx context.Context) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.client != nil && !r.aborted.Load() {
		return r.client, nil
	}

	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	r.client = client
	r.aborted.Store(false)
	return client, nil
}

// watch closes client if ctx is canceled before the returned stop function
// runs, unblocking the pending command.
func (r *Retriever) watch(ctx context.Context, client *imapclient.Client) func() bool {
	return context.AfterFunc(ctx, func() {
		r.aborted.Store(true)
		_ = client.Close()
	})
}

func (r *Retriever) dial(ctx context.Context) (*imapclient.Client, error) {
	address := net.JoinHostPort(r.opts.Host, strconv.Itoa(r.opts.Port))
	options := &imapclient.Options{}

	if r.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         r.opts.Host,
			InsecureSkipVerify: r.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if r.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	if err := client.Login(r.opts.Username, r.opts.Password).Wait(); err != nil {
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &source.AuthError{
			Source:  source.TypeIMAP,
			Message: fmt.Sprintf("login failed for %s: %v", r.opts.Username, err),
		}
	}

	if _, err := client.Select(r.mailbox(), &imapv2.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("select mailbox %s: %w", r.mailbox(), err)
	}

	if r.logger != nil {
		r.logger.Debug("imap connection established", "address", address, "user", r.opts.Username, "mailbox", r.mailbox(), "tls", r.opts.UseTLS)
	}

	return client, nil
}

func (r *Retriever) mailbox() string {
	if r.opts.Mailbox == "" {
		return "INBOX"
	}
	return r.opts.Mailbox
}
