// Package sqlite stores meal records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/felixgeelhaar/macrocam/internal/meal"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS meals (
		id        TEXT PRIMARY KEY,
		user_id   TEXT NOT NULL,
		meal_time INTEGER NOT NULL,
		calories  REAL NOT NULL DEFAULT 0,
		protein_g REAL NOT NULL DEFAULT 0,
		carbs_g   REAL NOT NULL DEFAULT 0,
		fat_g     REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meals_user_time ON meals (user_id, meal_time)`,
}

const (
	queryMeals = `SELECT id, user_id, meal_time, calories, protein_g, carbs_g, fat_g
		FROM meals
		WHERE user_id = ? AND meal_time BETWEEN ? AND ?
		ORDER BY meal_time DESC`
	insertMeal = `INSERT INTO meals (id, user_id, meal_time, calories, protein_g, carbs_g, fat_g)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// Store implements meal.Store on a SQLite database.
// meal_time is stored as Unix nanoseconds.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s, err := New(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies migrations.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle so other tables can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Query implements meal.Store.
func (s *Store) Query(ctx context.Context, q meal.Query) ([]meal.Record, error) {
	rows, err := s.db.QueryContext(ctx, queryMeals, q.UserID, q.From.UnixNano(), q.To.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []meal.Record
	for rows.Next() {
		var (
			r     meal.Record
			nanos int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &nanos, &r.Calories, &r.ProteinG, &r.CarbsG, &r.FatG); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r.MealTime = time.Unix(0, nanos)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// Insert implements meal.Store. Records without an id get a new UUID.
func (s *Store) Insert(ctx context.Context, r meal.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, insertMeal,
		r.ID, r.UserID, r.MealTime.UnixNano(),
		r.Calories, r.ProteinG, r.CarbsG, r.FatG,
	)
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}
