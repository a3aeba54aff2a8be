package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/models"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BackfillResult is one would-be or persisted month row, returned for
// inspection (dry runs) and for run summaries.
type BackfillResult struct {
	AtivoId      int             `json:"ativo_id"`
	Ticker       string          `json:"ticker"`
	Mes          time.Time       `json:"mes"`
	PrecoAtual   decimal.Decimal `json:"preco_atual"`
	Quantidade   decimal.Decimal `json:"quantidade"`
	ValorTotal   decimal.Decimal `json:"valor_total"`
	CustoTotal   decimal.Decimal `json:"custo_total"`
	ProventosMes decimal.Decimal `json:"proventos_mes"`
	Persisted    bool            `json:"persisted"`
	Error        string          `json:"error,omitempty"`
}

// BackfillEvolucao regenerates monthly snapshot rows for every asset of the
// owner, one calendar month at a time from fromMonth to toMonth inclusive.
// Assets with no ledger activity on or before a month boundary are skipped
// for that month. Re-running is safe: rows are upserted, not duplicated.
//
// With dryRun the would-be values are computed and returned but nothing is
// written. Per-item failures are recorded in the result list and the run
// continues.
func BackfillEvolucao(ctx context.Context, resolver *PriceResolver, ownerId string, fromMonth, toMonth time.Time, dryRun bool) ([]BackfillResult, error) {
	if ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	from := utils.FirstOfMonth(fromMonth)
	to := utils.FirstOfMonth(toMonth)
	if to.Before(from) {
		return nil, errors.New("to month precedes from month")
	}

	logger := config.GetLogger()
	db := config.GetDB()

	release := utils.OwnerLock("workflow", "BackfillEvolucao", "backfillBatch", ownerId, 10*time.Minute)
	defer release()

	results := make([]BackfillResult, 0)
	for _, month := range utils.MonthsBetween(from, to) {
		ativos, err := models.ListAtivos(db, ctx, ownerId)
		if err != nil {
			return results, err
		}
		for _, ativo := range ativos {
			held, err := models.HasMovimentacaoUntil(db, ctx, ativo.ID, month)
			if err != nil {
				results = append(results, BackfillResult{AtivoId: ativo.ID, Ticker: ativo.Ticker, Mes: month, Error: err.Error()})
				continue
			}
			if !held {
				continue
			}

			result := backfillOne(ctx, db, resolver, ativo, month, dryRun)
			if result == nil {
				continue
			}
			if result.Error != "" {
				logger.WithFields(logrus.Fields{
					"module":   "workflow",
					"funcName": "BackfillEvolucao",
					"ativo_id": ativo.ID,
					"ticker":   ativo.Ticker,
					"mes":      month.Format("2006-01"),
				}).Error("backfill item failed: " + result.Error)
			}
			results = append(results, *result)
		}
	}
	return results, nil
}

func backfillOne(ctx context.Context, db *gorm.DB, resolver *PriceResolver, ativo *models.Ativo, month time.Time, dryRun bool) *BackfillResult {
	if dryRun {
		movs, err := models.GetMovimentacoesUntil(db, ctx, ativo.ID, month)
		if err != nil {
			return &BackfillResult{AtivoId: ativo.ID, Ticker: ativo.Ticker, Mes: month, Error: err.Error()}
		}
		pos := PositionAsOf(movs, month)
		if !pos.Quantidade.IsPositive() {
			return nil
		}
		resolved := resolver.Resolve(ctx, ativo, pos)
		proventos, err := models.SumProventosForMonth(db, ctx, ativo.ID, month)
		if err != nil {
			return &BackfillResult{AtivoId: ativo.ID, Ticker: ativo.Ticker, Mes: month, Error: err.Error()}
		}
		preco := resolved.Preco.Round(2)
		quantidade := pos.Quantidade.Round(6)
		return &BackfillResult{
			AtivoId:      ativo.ID,
			Ticker:       ativo.Ticker,
			Mes:          month,
			PrecoAtual:   preco,
			Quantidade:   quantidade,
			ValorTotal:   preco.Mul(quantidade).Round(2),
			CustoTotal:   pos.CostBasis(),
			ProventosMes: proventos,
			Persisted:    false,
		}
	}

	var row *models.EvolucaoPatrimonial
	err := db.Transaction(func(tx *gorm.DB) error {
		var serr error
		row, serr = snapshotForMonth(ctx, tx, resolver, ativo, month)
		return serr
	})
	if err != nil {
		return &BackfillResult{AtivoId: ativo.ID, Ticker: ativo.Ticker, Mes: month, Error: err.Error()}
	}
	if row == nil {
		return nil
	}
	return &BackfillResult{
		AtivoId:      ativo.ID,
		Ticker:       ativo.Ticker,
		Mes:          month,
		PrecoAtual:   row.PrecoAtual,
		Quantidade:   row.Quantidade,
		ValorTotal:   row.ValorTotal,
		CustoTotal:   row.CustoTotal,
		ProventosMes: row.ProventosMes,
		Persisted:    true,
	}
}
