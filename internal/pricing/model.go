// Package pricing defines the closed set of pricing models and the pure
// quantity derivation rules used by billing eligibility.
package pricing

import (
	"errors"
	"strings"
)

// Model enumerates the supported pricing models.
type Model string

const (
	ModelHourly      Model = "hourly"
	ModelDaily       Model = "daily"
	ModelPerActivity Model = "per_activity"
	ModelFlat        Model = "flat"
)

var ErrUnknownModel = errors.New("unknown_pricing_model")

// ParseModel maps a stored pricing model string onto the closed enum.
// Unknown values are rejected instead of falling through to a default.
func ParseModel(value string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(value))) {
	case ModelHourly:
		return ModelHourly, nil
	case ModelDaily:
		return ModelDaily, nil
	case ModelPerActivity:
		return ModelPerActivity, nil
	case ModelFlat:
		return ModelFlat, nil
	default:
		return "", ErrUnknownModel
	}
}

// Valid reports whether the model is a member of the closed enum.
func (m Model) Valid() bool {
	switch m {
	case ModelHourly, ModelDaily, ModelPerActivity, ModelFlat:
		return true
	default:
		return false
	}
}
