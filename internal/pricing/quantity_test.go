package pricing

import (
	"errors"
	"testing"
	"time"
)

func TestQuantityHourlyFromWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	end := start.Add(90 * time.Minute)
	got, err := Quantity(ModelHourly, nil, &start, &end)
	if err != nil {
		t.Fatalf("quantity: %v", err)
	}
	if got != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", got)
	}

	short := start.Add(5 * time.Minute)
	got, err = Quantity(ModelHourly, nil, &start, &short)
	if err != nil {
		t.Fatalf("quantity: %v", err)
	}
	if got != MinimumHours {
		t.Fatalf("expected minimum floor %v, got %v", MinimumHours, got)
	}
}

func TestQuantityRecordedWinsOverWindow(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	recorded := 2.5

	got, err := Quantity(ModelHourly, &recorded, &start, &end)
	if err != nil {
		t.Fatalf("quantity: %v", err)
	}
	if got != 2.5 {
		t.Fatalf("expected recorded quantity 2.5, got %v", got)
	}
}

func TestQuantityDaily(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		hours time.Duration
		want  float64
	}{
		{"partial day rounds up to one", 6 * time.Hour, 1},
		{"just over a day rounds up", 25 * time.Hour, 2},
		{"exact multiple", 48 * time.Hour, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			end := start.Add(tc.hours)
			got, err := Quantity(ModelDaily, nil, &start, &end)
			if err != nil {
				t.Fatalf("quantity: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v days, got %v", tc.want, got)
			}
		})
	}
}

func TestQuantityUnitModels(t *testing.T) {
	for _, model := range []Model{ModelPerActivity, ModelFlat} {
		got, err := Quantity(model, nil, nil, nil)
		if err != nil {
			t.Fatalf("%s: %v", model, err)
		}
		if got != 1 {
			t.Fatalf("%s: expected quantity 1, got %v", model, got)
		}
	}
}

func TestQuantityInsufficient(t *testing.T) {
	zero := 0.0
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		model    Model
		recorded *float64
		start    *time.Time
		end      *time.Time
	}{
		{"hourly without input", ModelHourly, nil, nil, nil},
		{"hourly zero recorded no window", ModelHourly, &zero, nil, nil},
		{"hourly open-ended window", ModelHourly, nil, &start, nil},
		{"hourly inverted window", ModelHourly, nil, &start, &time.Time{}},
		{"daily without input", ModelDaily, nil, nil, nil},
		{"unknown model without recorded", Model("retainer"), nil, &start, &start},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Quantity(tc.model, tc.recorded, tc.start, tc.end); !errors.Is(err, ErrInsufficientQuantity) {
				t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
			}
		})
	}
}

func TestQuantityUnknownModelWithRecorded(t *testing.T) {
	recorded := 3.0
	got, err := Quantity(Model("retainer"), &recorded, nil, nil)
	if err != nil {
		t.Fatalf("quantity: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestParseModel(t *testing.T) {
	if _, err := ParseModel("retainer"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	model, err := ParseModel("  Hourly ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if model != ModelHourly {
		t.Fatalf("expected hourly, got %s", model)
	}
}

func TestAmountRounds(t *testing.T) {
	if got := Amount(1.5, 12500); got != 18750 {
		t.Fatalf("expected 18750, got %d", got)
	}
	if got := Amount(0.25, 9999); got != 2500 {
		t.Fatalf("expected 2500, got %d", got)
	}
}

func TestHoursOnlyForHourly(t *testing.T) {
	if got := Hours(ModelHourly, 2.5); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
	if got := Hours(ModelDaily, 2); got != 0 {
		t.Fatalf("expected 0 hours for daily, got %v", got)
	}
}
