// Package meal holds the meal record model, the day-windowed store gateway and
// the daily totals aggregator.
package meal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/macrocam/internal/errors"
)

// MacroEstimate is the analysis result for one image.
type MacroEstimate struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// Validate requires every field to be a finite, non-negative number.
func (e MacroEstimate) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"calories", e.Calories},
		{"protein_g", e.ProteinG},
		{"carbs_g", e.CarbsG},
		{"fat_g", e.FatG},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return errors.New(errors.ErrCodeStoreInvalid, fmt.Sprintf("%s is not a finite number", f.name))
		}
		if f.value < 0 {
			return errors.New(errors.ErrCodeStoreInvalid, fmt.Sprintf("%s is negative: %g", f.name, f.value))
		}
	}
	return nil
}

// Record is a persisted, timestamped MacroEstimate attributed to a user.
type Record struct {
	ID       string    `json:"id,omitempty"`
	UserID   string    `json:"user_id"`
	MealTime time.Time `json:"meal_time"`
	MacroEstimate
}

// NewRecord builds a validated record for userID stamped at the given time.
func NewRecord(userID string, est MacroEstimate, at time.Time) (Record, error) {
	r := Record{
		ID:            uuid.NewString(),
		UserID:        userID,
		MealTime:      at,
		MacroEstimate: est,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate rejects records without an owner or timestamp and records with invalid macros.
func (r Record) Validate() error {
	if r.UserID == "" {
		return errors.New(errors.ErrCodeStoreInvalid, "meal record has no user id")
	}
	if r.MealTime.IsZero() {
		return errors.New(errors.ErrCodeStoreInvalid, "meal record has no meal time")
	}
	return r.MacroEstimate.Validate()
}

// DayBounds returns the inclusive bounds of the local calendar day containing now.
// The end is one nanosecond before the next local midnight, so days shortened or
// lengthened by a DST change keep their real length.
func DayBounds(now time.Time) (start, end time.Time) {
	y, m, d := now.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return start, next.Add(-time.Nanosecond)
}
