package rating

import "math"

// PlackettLuce is the multi-team comparative model: each tier's players are
// compared against the whole field ranked at or above them.
type PlackettLuce struct {
	p params
}

// NewPlackettLuce creates a Plackett-Luce model.
func NewPlackettLuce(opts ...Option) *PlackettLuce {
	return &PlackettLuce{p: newParams(opts)}
}

// Default returns the stored prior.
func (m *PlackettLuce) Default() Rating { return m.p.defaultRating() }

// Exposure returns mu - z*sigma.
func (m *PlackettLuce) Exposure(r Rating) float64 { return m.p.exposure(r) }

// Rate updates every rating in tiers.
func (m *PlackettLuce) Rate(tiers [][]Rating) ([][]Rating, error) {
	cs, err := m.p.flatten(tiers)
	if err != nil {
		return nil, err
	}
	betaSq := m.p.beta * m.p.beta

	var sum float64
	for _, c := range cs {
		sum += c.sigmaSq + betaSq
	}
	cc := math.Sqrt(sum)

	strength := make([]float64, len(cs))
	for i, c := range cs {
		strength[i] = math.Exp(c.mu / cc)
	}
	// sumQ[q] sums strengths of everyone ranked at or below q; ties[q] counts q's tier.
	sumQ := make([]float64, len(cs))
	ties := make([]float64, len(cs))
	for q, cq := range cs {
		for i, ci := range cs {
			if ci.tier >= cq.tier {
				sumQ[q] += strength[i]
			}
			if ci.tier == cq.tier {
				ties[q]++
			}
		}
	}

	omega := make([]float64, len(cs))
	delta := make([]float64, len(cs))
	for i, ci := range cs {
		var o, d float64
		for q, cq := range cs {
			if cq.tier > ci.tier {
				continue
			}
			quotient := strength[i] / sumQ[q]
			d += quotient * (1 - quotient) / ties[q]
			if q == i {
				o += (1 - quotient) / ties[q]
			} else {
				o -= quotient / ties[q]
			}
		}
		gamma := math.Sqrt(ci.sigmaSq) / cc
		omega[i] = o * ci.sigmaSq / cc
		delta[i] = gamma * d * ci.sigmaSq / (cc * cc)
	}
	return m.p.fold(tiers, cs, omega, delta), nil
}
