package models

import (
	"context"
	"fmt"
	"time"

	"github.com/carteiralab/carteira_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvolucaoPatrimonial is a monthly valuation snapshot, one row per
// (ativo, month). Data is always the first day of the month; rewriting
// the same month overwrites instead of duplicating.
type EvolucaoPatrimonial struct {
	ID      int       `gorm:"primary_key" json:"id"`
	AtivoId int       `gorm:"uniqueIndex:idx_evolucao_ativo_mes;not null" json:"ativo_id"`
	Data    time.Time `gorm:"uniqueIndex:idx_evolucao_ativo_mes;not null" json:"data"`

	PrecoAtual   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"preco_atual"`
	Quantidade   decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"quantidade"`
	ValorTotal   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"valor_total"`
	CustoTotal   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"custo_total"`
	ProventosMes decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"proventos_mes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertEvolucaoPatrimonial writes one month row idempotently.
// valor_total is recomputed from preco * quantidade on every write,
// never taken from the caller.
func UpsertEvolucaoPatrimonial(tx *gorm.DB, ctx context.Context, row *EvolucaoPatrimonial) error {
	if row.AtivoId <= 0 {
		return fmt.Errorf("upsert evolucao: invalid ativo_id %d", row.AtivoId)
	}
	row.Data = utils.FirstOfMonth(row.Data)
	row.PrecoAtual = row.PrecoAtual.Round(2)
	row.Quantidade = row.Quantidade.Round(6)
	row.ValorTotal = row.PrecoAtual.Mul(row.Quantidade).Round(2)

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ativo_id"}, {Name: "data"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"preco_atual", "quantidade", "valor_total", "custo_total", "proventos_mes", "updated_at",
		}),
	}).Create(row).Error
}

// GetEvolucaoForMonth fetches the snapshot row of one asset for the month
// containing the given date, or nil when absent.
func GetEvolucaoForMonth(tx *gorm.DB, ctx context.Context, ativoId int, month time.Time) (*EvolucaoPatrimonial, error) {
	var row EvolucaoPatrimonial
	err := tx.WithContext(ctx).
		Where("ativo_id = ? AND data = ?", ativoId, utils.FirstOfMonth(month)).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
