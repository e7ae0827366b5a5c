package rating

import "math"

// BradleyTerry is the pairwise-probability model: every player is compared
// with every other player of the report as an independent pairing.
type BradleyTerry struct {
	p params
}

// NewBradleyTerry creates a full-pairing Bradley-Terry model.
func NewBradleyTerry(opts ...Option) *BradleyTerry {
	return &BradleyTerry{p: newParams(opts)}
}

// Default returns the stored prior.
func (m *BradleyTerry) Default() Rating { return m.p.defaultRating() }

// Exposure returns mu - z*sigma.
func (m *BradleyTerry) Exposure(r Rating) float64 { return m.p.exposure(r) }

// Rate updates every rating in tiers.
func (m *BradleyTerry) Rate(tiers [][]Rating) ([][]Rating, error) {
	cs, err := m.p.flatten(tiers)
	if err != nil {
		return nil, err
	}
	betaSq := m.p.beta * m.p.beta

	omega := make([]float64, len(cs))
	delta := make([]float64, len(cs))
	for i, ci := range cs {
		for q, cq := range cs {
			if q == i {
				continue
			}
			ciq := math.Sqrt(ci.sigmaSq + cq.sigmaSq + 2*betaSq)
			piq := 1 / (1 + math.Exp((cq.mu-ci.mu)/ciq))
			sigSqToCiq := ci.sigmaSq / ciq
			gamma := math.Sqrt(ci.sigmaSq) / ciq

			var s float64
			switch {
			case cq.tier > ci.tier:
				s = 1
			case cq.tier == ci.tier:
				s = 0.5
			}
			omega[i] += sigSqToCiq * (s - piq)
			delta[i] += gamma * sigSqToCiq / ciq * piq * (1 - piq)
		}
	}
	return m.p.fold(tiers, cs, omega, delta), nil
}
