package pricing

import (
	"errors"
	"math"
	"time"
)

// MinimumHours is the smallest billable increment for hourly services.
const MinimumHours = 0.25

var ErrInsufficientQuantity = errors.New("insufficient_quantity")

// Quantity derives the billable quantity for a pricing model from either an
// explicitly recorded quantity or a scheduled window. It is deterministic and
// has no side effects.
//
// Precedence per model:
//   - hourly, daily: recorded quantity when positive, otherwise derived from
//     the schedule window.
//   - per_activity, flat: always exactly 1; completion is the unit.
//   - anything else: requires a recorded positive quantity.
func Quantity(model Model, recorded *float64, scheduledStart, scheduledEnd *time.Time) (float64, error) {
	switch model {
	case ModelPerActivity, ModelFlat:
		return 1, nil
	case ModelHourly:
		if recorded != nil && *recorded > 0 {
			return *recorded, nil
		}
		hours, ok := windowHours(scheduledStart, scheduledEnd)
		if !ok {
			return 0, ErrInsufficientQuantity
		}
		if hours < MinimumHours {
			hours = MinimumHours
		}
		return hours, nil
	case ModelDaily:
		if recorded != nil && *recorded > 0 {
			return *recorded, nil
		}
		hours, ok := windowHours(scheduledStart, scheduledEnd)
		if !ok {
			return 0, ErrInsufficientQuantity
		}
		days := math.Ceil(hours / 24)
		if days < 1 {
			days = 1
		}
		return days, nil
	default:
		if recorded != nil && *recorded > 0 {
			return *recorded, nil
		}
		return 0, ErrInsufficientQuantity
	}
}

// Hours reports the hour component of a billable quantity. Only hourly
// quantities count toward hour-based budgets.
func Hours(model Model, quantity float64) float64 {
	if model == ModelHourly {
		return quantity
	}
	return 0
}

// Amount computes the charge in cents for a quantity at a unit rate,
// rounded half away from zero.
func Amount(quantity float64, unitRateCents int64) int64 {
	return int64(math.Round(quantity * float64(unitRateCents)))
}

func windowHours(start, end *time.Time) (float64, bool) {
	if start == nil || end == nil {
		return 0, false
	}
	if start.IsZero() || end.IsZero() || !end.After(*start) {
		return 0, false
	}
	return end.Sub(*start).Hours(), true
}
