package model

// StatusUnknown is assigned when no configured status rule matches a message.
const StatusUnknown = "unknown"

// RawMessage is a single message as handed over by a retrieval source.
type RawMessage struct {
	ID  string
	Raw []byte
}

// DecodedMessage holds the header fields and plain-text body of one message.
type DecodedMessage struct {
	Subject string
	From    string
	Date    string
	Body    string
}

// ClassifiedRecord is the exportable result for one message.
type ClassifiedRecord struct {
	Company string
	Date    string
	Status  string
	Subject string
}

// StatusRule maps a status label to the keywords that select it.
// A rule set is an ordered slice; earlier rules take priority.
type StatusRule struct {
	Label    string   `mapstructure:"label"`
	Keywords []string `mapstructure:"keywords"`
}
