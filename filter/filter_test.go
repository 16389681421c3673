package filter

import (
	"testing"
)

const (
	interviewMail = "Subject: Interview at Acme Corp\nFrom: hr@acme.com\n\nPlease pick a slot."
	newsletterMail = "Subject: Weekly digest\nFrom: news@example.com\n\nThis week in tech."
)

func TestFilter_Match_Query(t *testing.T) {
	f, err := New(Options{Query: "application interview offer"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Match([]byte(interviewMail)) {
		t.Error("Expected message to match (subject contains interview)")
	}
	if f.Match([]byte(newsletterMail)) {
		t.Error("Expected message to be filtered out (no query term in subject)")
	}
}

func TestFilter_Match_QueryIgnoresBody(t *testing.T) {
	f, err := New(Options{Query: "offer"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	raw := []byte("Subject: Hello\n\nWe have an offer for you.")
	if f.Match(raw) {
		t.Error("Expected query to be matched against the subject only")
	}
}

func TestFilter_Match_FoldedSubject(t *testing.T) {
	f, err := New(Options{Query: "position"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	raw := []byte("From: hr@acme.com\r\nSubject: Regarding the open\r\n Position at Acme\r\n\r\nBody")
	if !f.Match(raw) {
		t.Error("Expected folded subject to match")
	}
}

func TestFilter_Match_Exclude(t *testing.T) {
	f, err := New(Options{
		Query:         "interview",
		ExcludeHeader: []string{"(?im)^From:.*@acme\\.com"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if f.Match([]byte(interviewMail)) {
		t.Error("Expected message to be filtered out (excluded sender)")
	}
}

func TestFilter_Match_IncludeAndExclude(t *testing.T) {
	f, err := New(Options{
		IncludeBody: []string{"slot"},
		ExcludeBody: []string{"digest"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Match([]byte(interviewMail)) {
		t.Error("Expected message to be allowed (body includes slot)")
	}
	if f.Match([]byte(newsletterMail)) {
		t.Error("Expected message to be filtered out (no include pattern matches)")
	}
}

func TestFilter_NoFilters(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Match([]byte(newsletterMail)) {
		t.Error("Expected message to be allowed when no filters are active")
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	if _, err := New(Options{IncludeHeader: []string{"("}}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "simple", header: "Subject: Offer", want: "Offer"},
		{name: "missing", header: "From: a@b.c", want: ""},
		{name: "folded", header: "Subject: a\r\n b", want: "a b"},
		{name: "encoded word", header: "Subject: =?UTF-8?B?WW91ciBhcHBsaWNhdGlvbiDinJM=?=", want: "Your application ✓"},
		{name: "broken encoded word", header: "Subject: =?x-unknown?Q?Offer?=", want: "=?x-unknown?Q?Offer?="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Subject([]byte(tt.header)); got != tt.want {
				t.Errorf("Subject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitRawMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        []byte
		wantHeader []byte
		wantBody   []byte
	}{
		{
			name:       "CRLF separator",
			raw:        []byte("Subject: value\r\n\r\nBody content"),
			wantHeader: []byte("Subject: value"),
			wantBody:   []byte("Body content"),
		},
		{
			name:       "LF separator",
			raw:        []byte("Subject: value\n\nBody content"),
			wantHeader: []byte("Subject: value"),
			wantBody:   []byte("Body content"),
		},
		{
			name:       "No separator",
			raw:        []byte("Subject: only headers"),
			wantHeader: []byte("Subject: only headers"),
			wantBody:   nil,
		},
		{
			name:       "Empty message",
			raw:        []byte{},
			wantHeader: nil,
			wantBody:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotHeader, gotBody := SplitRawMessage(tt.raw)
			if string(gotHeader) != string(tt.wantHeader) {
				t.Errorf("SplitRawMessage() header = %q, want %q", gotHeader, tt.wantHeader)
			}
			if string(gotBody) != string(tt.wantBody) {
				t.Errorf("SplitRawMessage() body = %q, want %q", gotBody, tt.wantBody)
			}
		})
	}
}
