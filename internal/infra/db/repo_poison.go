package db

import (
	"context"
	"errors"
	"fmt"

	"sigqueue/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PoisonRepository archives entries the worker could not decode.
type PoisonRepository struct {
	db *gorm.DB
}

func NewPoisonRepository(db *gorm.DB) *PoisonRepository {
	return &PoisonRepository{db: db}
}

func (r *PoisonRepository) Record(ctx context.Context, msg domain.PoisonMessage) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if msg.WorkerID == "" {
		return errors.New("worker_id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	model := PoisonMessageModel{
		ID:         msg.ID,
		WorkerID:   msg.WorkerID,
		Raw:        msg.Raw,
		Reason:     msg.Reason,
		ReceivedAt: msg.ReceivedAt.UTC(),
	}
	// Poison ids are derived from worker and entry; a replay is a no-op.
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("archive poison message %s: %w", msg.ID, err)
	}
	return nil
}

// List returns the most recent poison messages first.
func (r *PoisonRepository) List(ctx context.Context, limit int) ([]domain.PoisonMessage, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	var models []PoisonMessageModel
	err := r.db.WithContext(ctx).
		Order("received_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.PoisonMessage, 0, len(models))
	for _, m := range models {
		out = append(out, domain.PoisonMessage{
			ID:         m.ID,
			WorkerID:   m.WorkerID,
			Raw:        m.Raw,
			Reason:     m.Reason,
			ReceivedAt: m.ReceivedAt,
		})
	}
	return out, nil
}
