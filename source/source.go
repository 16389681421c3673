// Package source defines the mail retrieval contract shared by the IMAP and
// mbox backends.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultQuery selects messages whose subject mentions any of these words.
const DefaultQuery = "application interview rejected offer position"

// Retriever searches a mailbox and returns raw RFC 5322 messages.
type Retriever interface {
	// Search returns message identifiers in retrieval order.
	Search(ctx context.Context, query string) ([]string, error)
	// Fetch returns the complete raw message for id.
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// Type names a retrieval backend.
type Type string

const (
	TypeIMAP Type = "imap"
	TypeMbox Type = "mbox"
)

// ErrNotFound is returned by Fetch for an identifier the backend does not know.
var ErrNotFound = errors.New("message not found")

// AuthError indicates the backend rejected the configured credentials.
type AuthError struct {
	Source  Type
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Source, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Terms splits a query into its OR-combined search terms. An empty query
// yields no terms, which matches every message.
func Terms(query string) []string {
	return strings.Fields(query)
}

// MatchSubject reports whether subject contains any of terms, ignoring case.
func MatchSubject(subject string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	subject = strings.ToLower(subject)
	for _, t := range terms {
		if strings.Contains(subject, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
