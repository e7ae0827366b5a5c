package replay

import (
	"github.com/okian/skillboard/internal/domain/report"
	"github.com/okian/skillboard/pkg/logger"
)

// Option applies a configuration option to the Replayer.
type Option func(*Replayer)

// WithClassifier sets the classifier deciding which history messages are reports.
func WithClassifier(c *report.Classifier) Option {
	return func(r *Replayer) {
		if c != nil {
			r.classifier = c
		}
	}
}

// WithLogger sets the replayer logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Replayer) {
		if l != nil {
			r.logger = l
		}
	}
}
