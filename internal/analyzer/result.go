package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Model error types, used as the error_type metric label.
const (
	ErrorTypeTransport  = "transport"
	ErrorTypeAPI        = "api"
	ErrorTypeDecode     = "decode"
	ErrorTypeIncomplete = "incomplete"
)

// ModelError is a failed model call.
type ModelError struct {
	Type string
	Err  error
}

func (e *ModelError) Error() string {
	return e.Err.Error()
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Result is the analysis payload returned by POST /analyze.
type Result struct {
	Calories   float64          `json:"calories"`
	ProteinG   float64          `json:"protein_g"`
	CarbsG     float64          `json:"carbs_g"`
	FatG       float64          `json:"fat_g"`
	Foods      []map[string]any `json:"foods"`
	Notes      *string          `json:"notes"`
	Confidence *string          `json:"confidence"`
}

type rawResult struct {
	Calories   *float64         `json:"calories"`
	ProteinG   *float64         `json:"protein_g"`
	CarbsG     *float64         `json:"carbs_g"`
	FatG       *float64         `json:"fat_g"`
	Foods      []map[string]any `json:"foods"`
	Notes      *string          `json:"notes"`
	Confidence *string          `json:"confidence"`
}

// ParseResult decodes model output. All four macro fields must be present,
// finite and not negative.
func ParseResult(data []byte) (*Result, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ModelError{Type: ErrorTypeDecode, Err: fmt.Errorf("model output is not JSON: %w", err)}
	}

	var missing []string
	fields := []struct {
		name string
		v    *float64
	}{
		{"calories", raw.Calories},
		{"protein_g", raw.ProteinG},
		{"carbs_g", raw.CarbsG},
		{"fat_g", raw.FatG},
	}
	for _, f := range fields {
		if f.v == nil || math.IsNaN(*f.v) || math.IsInf(*f.v, 0) || *f.v < 0 {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &ModelError{Type: ErrorTypeIncomplete, Err: fmt.Errorf("model output lacks valid %s", strings.Join(missing, ", "))}
	}

	foods := raw.Foods
	if foods == nil {
		foods = []map[string]any{}
	}
	return &Result{
		Calories:   *raw.Calories,
		ProteinG:   *raw.ProteinG,
		CarbsG:     *raw.CarbsG,
		FatG:       *raw.FatG,
		Foods:      foods,
		Notes:      raw.Notes,
		Confidence: raw.Confidence,
	}, nil
}
