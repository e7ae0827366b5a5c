package report

import (
	"regexp"
	"strings"

	"github.com/okian/skillboard/internal/domain/model"
)

// Defaults for the puzzle bot signature.
const (
	DefaultAuthorID   = "269715475410190346"
	DefaultAuthorName = "Wordle"
	DefaultMarker     = "results:"
)

// bareMention matches an @ that does not open a <@id> token.
var bareMention = regexp.MustCompile(`(?:^|[^<])@`)

// Class is the routing decision for an inbound message.
type Class int

// Classes.
const (
	// NotReport is anything that is not from the report author or lacks the marker.
	NotReport Class = iota
	// Report is routed to the rating engine.
	Report
	// Rejected is a historical report carrying an unresolvable bare mention.
	Rejected
)

func (c Class) String() string {
	switch c {
	case Report:
		return "report"
	case Rejected:
		return "rejected"
	default:
		return "not_report"
	}
}

// Classifier recognizes report messages by author and marker.
type Classifier struct {
	authorID   string
	authorName string
	marker     string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithAuthorID sets the report author's platform id.
func WithAuthorID(id string) ClassifierOption {
	return func(c *Classifier) {
		if id != "" {
			c.authorID = id
		}
	}
}

// WithAuthorName sets the report author's display name used for history.
func WithAuthorName(name string) ClassifierOption {
	return func(c *Classifier) {
		if name != "" {
			c.authorName = name
		}
	}
}

// WithMarker sets the substring every report contains.
func WithMarker(marker string) ClassifierOption {
	return func(c *Classifier) {
		if marker != "" {
			c.marker = marker
		}
	}
}

// NewClassifier creates a Classifier with the puzzle bot defaults.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		authorID:   DefaultAuthorID,
		authorName: DefaultAuthorName,
		marker:     DefaultMarker,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Live classifies a message that just arrived. Only the author id is trusted.
func (c *Classifier) Live(msg model.Message) Class {
	if msg.AuthorID != c.authorID || !strings.Contains(msg.Content, c.marker) {
		return NotReport
	}
	return Report
}

// Historical classifies a message read back from history. Display names are
// accepted because exported history may lack ids, and a message with a bare
// mention is rejected as a whole.
func (c *Classifier) Historical(msg model.Message) Class {
	fromAuthor := msg.AuthorID == c.authorID || (c.authorName != "" && msg.AuthorName == c.authorName)
	if !fromAuthor || !strings.Contains(msg.Content, c.marker) {
		return NotReport
	}
	if HasBareMention(msg.Content) {
		return Rejected
	}
	return Report
}

// HasBareMention reports whether content holds an @ outside a <@id> token.
func HasBareMention(content string) bool {
	return bareMention.MatchString(content)
}
