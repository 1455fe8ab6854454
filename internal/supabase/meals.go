package supabase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/felixgeelhaar/macrocam/internal/meal"
)

// MealsTable is the PostgREST table holding meal records.
const MealsTable = "meals"

const mealColumns = "id,user_id,meal_time,calories,protein_g,carbs_g,fat_g"

// TokenSource supplies the signed-in user's access token.
type TokenSource interface {
	AccessToken() string
}

// MealStore implements meal.Store on the meals table. Requests carry the
// user's access token so row level security scopes them.
type MealStore struct {
	client *Client
	tokens TokenSource
}

// NewMealStore creates a meal store.
func NewMealStore(client *Client, tokens TokenSource) *MealStore {
	return &MealStore{client: client, tokens: tokens}
}

type mealRow struct {
	ID       json.RawMessage `json:"id,omitempty"`
	UserID   string          `json:"user_id"`
	MealTime time.Time       `json:"meal_time"`
	Calories *float64        `json:"calories"`
	ProteinG *float64        `json:"protein_g"`
	CarbsG   *float64        `json:"carbs_g"`
	FatG     *float64        `json:"fat_g"`
}

type mealInsert struct {
	UserID   string  `json:"user_id"`
	MealTime string  `json:"meal_time"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// Query implements meal.Store.
func (s *MealStore) Query(ctx context.Context, q meal.Query) ([]meal.Record, error) {
	var rows []mealRow
	err := s.client.Database().From(MealsTable).
		Select(mealColumns).
		Eq("user_id", q.UserID).
		Gte("meal_time", timestamp(q.From)).
		Lte("meal_time", timestamp(q.To)).
		Order("meal_time", OrderDesc).
		WithToken(s.tokens.AccessToken()).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, err
	}

	records := make([]meal.Record, 0, len(rows))
	for _, row := range rows {
		r := meal.Record{
			ID:       rowID(row.ID),
			UserID:   row.UserID,
			MealTime: row.MealTime,
			MacroEstimate: meal.MacroEstimate{
				Calories: deref(row.Calories),
				ProteinG: deref(row.ProteinG),
				CarbsG:   deref(row.CarbsG),
				FatG:     deref(row.FatG),
			},
		}
		records = append(records, r)
	}
	return records, nil
}

// Insert implements meal.Store. The table assigns the id.
func (s *MealStore) Insert(ctx context.Context, r meal.Record) error {
	row := mealInsert{
		UserID:   r.UserID,
		MealTime: timestamp(r.MealTime),
		Calories: r.Calories,
		ProteinG: r.ProteinG,
		CarbsG:   r.CarbsG,
		FatG:     r.FatG,
	}

	_, err := s.client.Database().From(MealsTable).
		Insert(row).
		WithToken(s.tokens.AccessToken()).
		Execute(ctx)
	return err
}

// timestamp renders t for a timestamptz column. Postgres keeps microseconds,
// so t is truncated rather than rounded up into the next instant.
func timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format("2006-01-02T15:04:05.999999Z07:00")
}

func rowID(raw json.RawMessage) string {
	id := strings.Trim(string(raw), `"`)
	if id == "null" {
		return ""
	}
	return id
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
