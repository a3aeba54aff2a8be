package workflow

import (
	"time"

	"github.com/carteiralab/carteira_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Posicao is the projected state of one asset's ledger: units held, the
// accumulated cost of those units and the weighted-average cost per unit.
type Posicao struct {
	Quantidade decimal.Decimal
	CustoTotal decimal.Decimal
	PrecoMedio decimal.Decimal
}

// CostBasis is CustoTotal clamped to non-negative, rounded to 2 decimal
// places. Oversold ledgers can drive the raw accumulator below zero; the
// valuation rows never carry a negative cost.
func (p Posicao) CostBasis() decimal.Decimal {
	if p.CustoTotal.IsNegative() {
		return decimal.Zero
	}
	return p.CustoTotal.Round(2)
}

// ProjectPosition folds a ledger, already in (data, created_at, id) replay
// order, into the current position. Pure: no database access, no rejection
// of malformed accumulated state.
//
// COMPRA adds units and cost. VENDA removes the proportional share of the
// accumulated cost before removing units (average-cost disposal, not FIFO).
// BONIFICACAO, GRUPAMENTO and DESDOBRAMENTO are caller-supplied quantity
// adjustments with no cost impact; the engine does not compute split ratios.
func ProjectPosition(movs []*models.Movimentacao) Posicao {
	quantidade := decimal.Zero
	custoTotal := decimal.Zero

	for _, m := range movs {
		switch m.Operacao {
		case models.OperacaoCompra:
			quantidade = quantidade.Add(m.Quantidade)
			custoTotal = custoTotal.Add(m.Quantidade.Mul(m.PrecoUnitario).Add(m.Taxa))
		case models.OperacaoVenda:
			if quantidade.IsPositive() {
				custoTotal = custoTotal.Sub(custoTotal.Mul(m.Quantidade).Div(quantidade))
			}
			quantidade = quantidade.Sub(m.Quantidade)
		case models.OperacaoBonificacao, models.OperacaoGrupamento, models.OperacaoDesdobramento:
			quantidade = quantidade.Add(m.Quantidade)
		}
	}

	pos := Posicao{Quantidade: quantidade, CustoTotal: custoTotal}
	if quantidade.IsPositive() {
		pos.PrecoMedio = custoTotal.DivRound(quantidade, 6)
	}
	return pos
}

// PositionAsOf replays the same fold restricted to movements with
// data <= cutoff. With a cutoff at or past the last trade date it is
// identical to ProjectPosition over the full ledger.
func PositionAsOf(movs []*models.Movimentacao, cutoff time.Time) Posicao {
	filtered := make([]*models.Movimentacao, 0, len(movs))
	for _, m := range movs {
		if !m.Data.After(cutoff) {
			filtered = append(filtered, m)
		}
	}
	return ProjectPosition(filtered)
}

// RecalculateAtivo reloads the ordered ledger and rewrites the asset's
// quantidade/preco_medio memo inside the caller's transaction. Running it
// twice with no new movements yields the same result.
func RecalculateAtivo(tx *gorm.DB, logger *logrus.Logger, ativo *models.Ativo) (Posicao, error) {
	movs, err := models.GetMovimentacoesOrdered(tx, tx.Statement.Context, ativo.ID)
	if err != nil {
		return Posicao{}, err
	}
	pos := ProjectPosition(movs)

	if pos.Quantidade.IsNegative() && logger != nil {
		logger.WithFields(logrus.Fields{
			"module":     "workflow",
			"ativo_id":   ativo.ID,
			"ticker":     ativo.Ticker,
			"quantidade": pos.Quantidade.String(),
		}).Warn("ledger oversold: projected quantity is negative")
	}

	if err := tx.Model(&models.Ativo{}).
		Where("id = ?", ativo.ID).
		Updates(map[string]interface{}{
			"quantidade":  pos.Quantidade,
			"preco_medio": pos.PrecoMedio,
		}).Error; err != nil {
		return Posicao{}, err
	}
	ativo.Quantidade = pos.Quantidade
	ativo.PrecoMedio = pos.PrecoMedio
	return pos, nil
}
