package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jbaptiste/caisse-ledger/internal/domain"
)

type BranchRepository struct {
	db *sql.DB
}

func NewBranchRepository(db *sql.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

func (r *BranchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Branch, error) {
	var b domain.Branch
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, timezone, created_at FROM branches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Code, &b.Name, &b.Timezone, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &b, nil
}

func (r *BranchRepository) GetByCode(ctx context.Context, code string) (*domain.Branch, error) {
	var b domain.Branch
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, timezone, created_at FROM branches WHERE code = $1`, code,
	).Scan(&b.ID, &b.Code, &b.Name, &b.Timezone, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByCode: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByCode: %w", err)
	}
	return &b, nil
}
