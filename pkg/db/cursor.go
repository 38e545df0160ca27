// Package db persists watcher progress. Each chain has one cursor: the last
// block whose confirmed events were fully applied.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/htlc-resolver/pkg/db/dao"
)

// Cursor is the scan position of one chain.
type Cursor struct {
	ChainID       string
	LastBlock     uint64
	LastBlockHash string
	UpdatedAt     time.Time
}

// CursorStore loads and saves chain cursors. GetCursor returns nil, nil for a
// chain that was never scanned.
type CursorStore interface {
	GetCursor(ctx context.Context, chainID string) (*Cursor, error)
	SaveCursor(ctx context.Context, c Cursor) error
}

type pgCursorStore struct {
	db *bun.DB
}

// NewCursorStore returns a CursorStore over the chain_state table.
func NewCursorStore(db *bun.DB) CursorStore {
	return &pgCursorStore{db: db}
}

func (s *pgCursorStore) GetCursor(ctx context.Context, chainID string) (*Cursor, error) {
	row := new(dao.ChainStateDao)
	err := s.db.NewSelect().
		Model(row).
		Where("chain_id = ?", chainID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor for chain %s: %w", chainID, err)
	}
	return &Cursor{
		ChainID:       row.ChainID,
		LastBlock:     uint64(row.LastBlock),
		LastBlockHash: row.LastBlockHash,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}

func (s *pgCursorStore) SaveCursor(ctx context.Context, c Cursor) error {
	row := &dao.ChainStateDao{
		ChainID:       c.ChainID,
		LastBlock:     int64(c.LastBlock),
		LastBlockHash: c.LastBlockHash,
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (chain_id) DO UPDATE").
		Set("last_block = EXCLUDED.last_block").
		Set("last_block_hash = EXCLUDED.last_block_hash").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save cursor for chain %s: %w", c.ChainID, err)
	}
	return nil
}

// MemoryCursorStore keeps cursors in process memory.
type MemoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]Cursor
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{cursors: make(map[string]Cursor)}
}

func (s *MemoryCursorStore) GetCursor(_ context.Context, chainID string) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cursors[chainID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryCursorStore) SaveCursor(_ context.Context, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.UpdatedAt = time.Now().UTC()
	s.cursors[c.ChainID] = c
	return nil
}
