package meal

import "math"

// DailyTotals is the sum of one day's meal records. It is derived, never stored.
type DailyTotals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Aggregate sums the four macro fields across records.
// Values that are not finite or are negative contribute zero.
func Aggregate(records []Record) DailyTotals {
	var t DailyTotals
	for _, r := range records {
		t.Calories += orZero(r.Calories)
		t.Protein += orZero(r.ProteinG)
		t.Carbs += orZero(r.CarbsG)
		t.Fat += orZero(r.FatG)
	}
	return t
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
