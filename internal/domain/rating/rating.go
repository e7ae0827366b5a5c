// Package rating defines the skill model contract used by the rating engine
// and ships two Weng-Lin Bayesian approximations behind it.
//
// The engine only depends on Model. Both concrete models treat every player as
// a team of one and every tier as one rank; players sharing a tier are tied.
package rating

import (
	"fmt"
	"math"
)

// Stored defaults of the persisted rating columns.
const (
	DefaultMu    = 25.0
	DefaultSigma = 8.333
)

// Rating is a player's belief state under a skill model.
type Rating struct {
	Mu    float64
	Sigma float64
}

// Model is the pluggable skill model.
type Model interface {
	// Default returns the prior for a never-seen player.
	Default() Rating
	// Rate returns updated ratings with the same shape as tiers. Tiers are
	// ordered best first; ratings within a tier are tied.
	Rate(tiers [][]Rating) ([][]Rating, error)
	// Exposure returns a conservative, sortable skill estimate.
	Exposure(r Rating) float64
}

// Option tunes model parameters.
type Option func(*params)

type params struct {
	mu    float64
	sigma float64
	beta  float64
	kappa float64
	tau   float64
	z     float64
}

func newParams(opts []Option) params {
	p := params{
		mu:    DefaultMu,
		sigma: DefaultMu / 3,
		beta:  DefaultMu / 6,
		kappa: 0.0001,
		tau:   DefaultMu / 300,
		z:     3,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithBeta sets the performance variance scale.
func WithBeta(beta float64) Option {
	return func(p *params) {
		if beta > 0 {
			p.beta = beta
		}
	}
}

// WithKappa sets the lower bound applied to the sigma shrink factor.
func WithKappa(kappa float64) Option {
	return func(p *params) {
		if kappa > 0 {
			p.kappa = kappa
		}
	}
}

// WithTau sets the additive dynamics added to every sigma before an update.
// A zero tau disables it.
func WithTau(tau float64) Option {
	return func(p *params) {
		if tau >= 0 {
			p.tau = tau
		}
	}
}

// WithExposureZ sets how many standard deviations Exposure subtracts.
func WithExposureZ(z float64) Option {
	return func(p *params) {
		if z >= 0 {
			p.z = z
		}
	}
}

func (p params) defaultRating() Rating {
	return Rating{Mu: DefaultMu, Sigma: DefaultSigma}
}

func (p params) exposure(r Rating) float64 {
	return r.Mu - p.z*r.Sigma
}

// contestant is one player flattened out of its tier.
type contestant struct {
	tier    int
	pos     int
	mu      float64
	sigmaSq float64
}

// flatten validates tiers and applies tau. The returned slice keeps tier
// order so results can be folded back into the input shape.
func (p params) flatten(tiers [][]Rating) ([]contestant, error) {
	if len(tiers) == 0 {
		return nil, ErrNoTiers
	}
	var out []contestant
	for ti, tier := range tiers {
		if len(tier) == 0 {
			return nil, fmt.Errorf("%w: tier %d", ErrEmptyTier, ti)
		}
		for pi, r := range tier {
			if !(r.Sigma > 0) || math.IsInf(r.Sigma, 0) || math.IsNaN(r.Mu) || math.IsInf(r.Mu, 0) {
				return nil, fmt.Errorf("%w: tier %d position %d", ErrInvalidRating, ti, pi)
			}
			out = append(out, contestant{
				tier:    ti,
				pos:     pi,
				mu:      r.Mu,
				sigmaSq: r.Sigma*r.Sigma + p.tau*p.tau,
			})
		}
	}
	return out, nil
}

// fold applies omega/delta per contestant and rebuilds the tier shape.
func (p params) fold(tiers [][]Rating, cs []contestant, omega, delta []float64) [][]Rating {
	out := make([][]Rating, len(tiers))
	for i, tier := range tiers {
		out[i] = make([]Rating, len(tier))
	}
	for i, c := range cs {
		// One player per team, so the player's share of the team variance is 1.
		mu := c.mu + omega[i]
		sigma := math.Sqrt(c.sigmaSq) * math.Sqrt(math.Max(1-delta[i], p.kappa))
		out[c.tier][c.pos] = Rating{Mu: mu, Sigma: sigma}
	}
	return out
}
