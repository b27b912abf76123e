package fee

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	FindActive(ctx context.Context, walletID *uuid.UUID, txType TransactionType) ([]Configuration, error)
	Create(ctx context.Context, cfg *Configuration) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindActive(ctx context.Context, walletID *uuid.UUID, txType TransactionType) ([]Configuration, error) {
	q := r.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB { return db.Order("min_amount asc") }).
		Where("is_active = ? AND transaction_type = ?", true, txType)

	if walletID != nil {
		q = q.Where("wallet_id IS NULL OR wallet_id = ?", *walletID)
	} else {
		q = q.Where("wallet_id IS NULL")
	}

	var cfgs []Configuration
	err := q.Order("priority desc").Find(&cfgs).Error
	return cfgs, err
}

func (r *repository) Create(ctx context.Context, cfg *Configuration) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}
