package models

import (
	"context"
	"errors"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Provento is a dividend receipt. Only consumed as calendar-month sums.
type Provento struct {
	ID      int             `gorm:"primary_key" json:"id"`
	AtivoId int             `gorm:"index;not null" json:"ativo_id" binding:"required"`
	Data    time.Time       `gorm:"index;not null" json:"data" binding:"required"`
	Valor   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"valor"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProvento struct {
	AtivoId int             `json:"ativo_id" binding:"required"`
	Data    time.Time       `json:"data" binding:"required"`
	Valor   decimal.Decimal `json:"valor" binding:"required"`
}

func CreateProvento(ctx context.Context, input *NewProvento) (*Provento, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Ativo](ctx, ownerId, input.AtivoId); err != nil {
		return nil, errors.New("ativo not found")
	}

	provento := Provento{
		AtivoId: input.AtivoId,
		Data:    input.Data,
		Valor:   input.Valor,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&provento).Error; err != nil {
		return nil, err
	}
	return &provento, nil
}

// SumProventosForMonth totals dividends of one asset inside the calendar
// month containing the given date, regardless of day-of-month.
func SumProventosForMonth(tx *gorm.DB, ctx context.Context, ativoId int, month time.Time) (decimal.Decimal, error) {
	start, end := utils.MonthRange(month)

	var total decimal.Decimal
	err := tx.WithContext(ctx).Model(&Provento{}).
		Select("COALESCE(SUM(valor), 0)").
		Where("ativo_id = ? AND data >= ? AND data < ?", ativoId, start, end).
		Scan(&total).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return total, nil
}
