package classifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dhcgn/jobmail-export/model"
)

// DefaultCompanyPattern finds "at <Company>" in a subject line. Only the
// anchor word is case-insensitive; the captured name must start uppercase.
const DefaultCompanyPattern = `(?i:at)\s+([A-Z][a-zA-Z0-9&\-. ]+)`

var (
	// ErrNoRules is returned when a classifier is built without status rules.
	ErrNoRules = errors.New("at least one status rule is required")
	// ErrInvalidRule is returned for rules with empty, reserved or duplicate
	// labels, or with empty keywords.
	ErrInvalidRule = errors.New("invalid status rule")
)

// Classifier derives status and company from a decoded message.
// It is safe for concurrent use.
type Classifier struct {
	rules   []model.StatusRule
	company *regexp.Regexp
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithCompanyPattern replaces the company extraction pattern. The pattern
// must contain exactly one capture group.
func WithCompanyPattern(pattern string) Option {
	return func(c *Classifier) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("compile company pattern %q: %w", pattern, err)
		}
		if re.NumSubexp() != 1 {
			return fmt.Errorf("company pattern %q: want exactly one capture group, got %d", pattern, re.NumSubexp())
		}
		c.company = re
		return nil
	}
}

// DefaultRules returns the built-in status rules. Narrow outcomes come before
// the broad "applied" label.
func DefaultRules() []model.StatusRule {
	return []model.StatusRule{
		{Label: "rejected", Keywords: []string{
			"unfortunately",
			"not moving forward",
			"regret to inform",
			"other candidates",
			"not been selected",
		}},
		{Label: "offer", Keywords: []string{
			"pleased to offer",
			"job offer",
			"offer letter",
			"excited to offer",
		}},
		{Label: "interview", Keywords: []string{
			"interview",
			"schedule a call",
			"availability",
		}},
		{Label: "applied", Keywords: []string{
			"thank you for applying",
			"application received",
			"received your application",
			"thanks for your interest",
		}},
	}
}

// New validates rules and returns a Classifier. Keywords are lowercased; the
// order of rules is the match priority.
func New(rules []model.StatusRule, opts ...Option) (*Classifier, error) {
	normalized, err := normalizeRules(rules)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		rules:   normalized,
		company: regexp.MustCompile(DefaultCompanyPattern),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Rules returns a copy of the normalized rules in priority order.
func (c *Classifier) Rules() []model.StatusRule {
	out := make([]model.StatusRule, len(c.rules))
	for i, r := range c.rules {
		out[i] = model.StatusRule{Label: r.Label, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}

// Classify builds the exportable record for msg.
func (c *Classifier) Classify(msg model.DecodedMessage) model.ClassifiedRecord {
	return model.ClassifiedRecord{
		Company: c.Company(msg),
		Date:    msg.Date,
		Status:  c.Status(msg),
		Subject: msg.Subject,
	}
}

// Company returns the name captured from the subject, or the raw From header
// when the subject has no match.
func (c *Classifier) Company(msg model.DecodedMessage) string {
	m := c.company.FindStringSubmatch(msg.Subject)
	if m == nil {
		return msg.From
	}
	return strings.TrimSpace(m[1])
}

// Status returns the label of the first rule with a keyword contained in the
// lowercased subject or body, or model.StatusUnknown.
func (c *Classifier) Status(msg model.DecodedMessage) string {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)

	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(subject, kw) || strings.Contains(body, kw) {
				return rule.Label
			}
		}
	}
	return model.StatusUnknown
}

func normalizeRules(rules []model.StatusRule) ([]model.StatusRule, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	seen := make(map[string]struct{}, len(rules))
	out := make([]model.StatusRule, 0, len(rules))
	for i, r := range rules {
		label := strings.TrimSpace(r.Label)
		switch {
		case label == "":
			return nil, fmt.Errorf("%w: rule %d has an empty label", ErrInvalidRule, i)
		case label == model.StatusUnknown:
			return nil, fmt.Errorf("%w: label %q is reserved", ErrInvalidRule, label)
		case len(r.Keywords) == 0:
			return nil, fmt.Errorf("%w: label %q has no keywords", ErrInvalidRule, label)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidRule, label)
		}
		seen[label] = struct{}{}

		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(kw)
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("%w: label %q has an empty keyword", ErrInvalidRule, label)
			}
			keywords = append(keywords, kw)
		}
		out = append(out, model.StatusRule{Label: label, Keywords: keywords})
	}
	return out, nil
}
