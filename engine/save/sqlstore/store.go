package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nathoo/talecore/engine/save"
)

// Store implements save.Store for one game.
type Store struct {
	db     *sqlx.DB
	q      *queries
	gameID string
}

// New prepares the saves table and returns a store scoped to gameID.
func New(ctx context.Context, db *sqlx.DB, gameID string) (*Store, error) {
	q, err := loadQueries(db)
	if err != nil {
		return nil, err
	}
	if _, err := q.exec(ctx, "create-saves-table"); err != nil {
		return nil, fmt.Errorf("creating saves table: %w", err)
	}
	return &Store{db: db, q: q, gameID: gameID}, nil
}

// Save inserts or replaces a save. The row id is assigned on first insert.
func (s *Store) Save(ctx context.Context, name string, sd *save.SaveData) error {
	if err := save.ValidateName(name); err != nil {
		return err
	}
	data, err := save.Marshal(sd)
	if err != nil {
		return fmt.Errorf("encoding save: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating save id: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.q.exec(ctx, "upsert-save", id.String(), s.gameID, name, sd.TurnIndex, string(data), now); err != nil {
		return fmt.Errorf("writing save: %w", err)
	}
	return nil
}

// Load reads a save by name.
func (s *Store) Load(ctx context.Context, name string) (*save.SaveData, error) {
	if err := save.ValidateName(name); err != nil {
		return nil, err
	}
	var data string
	if err := s.q.get(ctx, "get-save", &data, s.gameID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", save.ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading save: %w", err)
	}
	return save.Unmarshal([]byte(data))
}

// Delete removes a save. Deleting a missing save is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := save.ValidateName(name); err != nil {
		return err
	}
	if _, err := s.q.exec(ctx, "delete-save", s.gameID, name); err != nil {
		return fmt.Errorf("deleting save: %w", err)
	}
	return nil
}

// List returns save names for the game in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := s.q.selectAll(ctx, "list-saves", &names, s.gameID); err != nil {
		return nil, fmt.Errorf("listing saves: %w", err)
	}
	return names, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
