package rating

import (
	"fmt"
	"strings"
)

// Model names accepted by New.
const (
	NamePlackettLuce = "plackett-luce"
	NameBradleyTerry = "bradley-terry"
)

// New returns the model registered under name.
func New(name string, opts ...Option) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NamePlackettLuce:
		return NewPlackettLuce(opts...), nil
	case NameBradleyTerry:
		return NewBradleyTerry(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
}
