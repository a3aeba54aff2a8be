package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Movimentacao is an append-only ledger entry. There is no update path:
// callers model edits as delete + recreate so the posting workflow always
// recomputes the asset from a consistent ledger.
type Movimentacao struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AtivoId       int             `gorm:"index;not null" json:"ativo_id" binding:"required"`
	Data          time.Time       `gorm:"index;not null" json:"data" binding:"required"`
	Operacao      Operacao        `gorm:"type:enum('COMPRA','VENDA','BONIFICACAO','GRUPAMENTO','DESDOBRAMENTO');not null" json:"operacao" binding:"required"`
	Quantidade    decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"quantidade"`
	PrecoUnitario decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"preco_unitario"`
	Taxa          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"taxa"`

	// CustoTotal is derived in BeforeSave and is never caller-settable.
	CustoTotal decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"custo_total"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave keeps custo_total consistent with quantidade/preco_unitario/taxa
// at rest, whatever the caller put in the struct.
func (m *Movimentacao) BeforeSave(tx *gorm.DB) error {
	m.CustoTotal = m.Quantidade.Mul(m.PrecoUnitario).Add(m.Taxa)
	return nil
}

// GetMovimentacoesOrdered loads the full ledger of one asset in replay order.
// created_at and id break ties between movements sharing a trade date;
// replay order affects average-cost results, so insertion order alone is
// never enough.
func GetMovimentacoesOrdered(tx *gorm.DB, ctx context.Context, ativoId int) ([]*Movimentacao, error) {
	var movs []*Movimentacao
	if err := tx.WithContext(ctx).
		Where("ativo_id = ?", ativoId).
		Order("data ASC, created_at ASC, id ASC").
		Find(&movs).Error; err != nil {
		return nil, err
	}
	return movs, nil
}

// GetMovimentacoesUntil loads the ledger restricted to data <= cutoff,
// in the same replay order.
func GetMovimentacoesUntil(tx *gorm.DB, ctx context.Context, ativoId int, cutoff time.Time) ([]*Movimentacao, error) {
	var movs []*Movimentacao
	if err := tx.WithContext(ctx).
		Where("ativo_id = ? AND data <= ?", ativoId, cutoff).
		Order("data ASC, created_at ASC, id ASC").
		Find(&movs).Error; err != nil {
		return nil, err
	}
	return movs, nil
}

// HasMovimentacaoUntil reports whether the asset had any ledger activity
// on or before the cutoff. Backfill uses this to skip not-yet-held assets.
func HasMovimentacaoUntil(tx *gorm.DB, ctx context.Context, ativoId int, cutoff time.Time) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&Movimentacao{}).
		Where("ativo_id = ? AND data <= ?", ativoId, cutoff).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
