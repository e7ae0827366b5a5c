package engine

import "github.com/okian/skillboard/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDecayAmount sets how much mu an absent player loses per report.
func WithDecayAmount(amount float64) Option {
	return func(e *Engine) {
		if amount >= 0 {
			e.decay = amount
		}
	}
}

// WithMinMu sets the floor decay never pushes mu below.
func WithMinMu(floor float64) Option {
	return func(e *Engine) {
		e.minMu = floor
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
