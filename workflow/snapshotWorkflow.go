package workflow

import (
	"context"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/models"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Snapshot semantics come in two explicit, intentionally different modes:
//
//   - live ("take snapshot now"): quantity and cost are replayed to the
//     exact as-of date; the row key and the dividend month are the
//     normalized first-of-month.
//   - backfill ("regenerate a past month"): the normalized month boundary
//     is used throughout, including the replay cutoff.
//
// Callers pick one mode; SnapshotAtivo is live, snapshotForMonth (used by
// the backfill workflow) is the other.

// SnapshotAtivo materializes the live valuation snapshot of one asset.
// Returns (nil, nil) without writing when the projected quantity is zero
// or negative: a zeroed-out or never-held position gets no history row.
func SnapshotAtivo(ctx context.Context, tx *gorm.DB, resolver *PriceResolver, ativo *models.Ativo, asOf time.Time) (*models.EvolucaoPatrimonial, error) {
	return snapshotAt(ctx, tx, resolver, ativo, asOf, asOf)
}

// snapshotForMonth is the backfill-mode variant: replay cutoff and row key
// are both the normalized month boundary.
func snapshotForMonth(ctx context.Context, tx *gorm.DB, resolver *PriceResolver, ativo *models.Ativo, month time.Time) (*models.EvolucaoPatrimonial, error) {
	boundary := utils.FirstOfMonth(month)
	return snapshotAt(ctx, tx, resolver, ativo, boundary, boundary)
}

func snapshotAt(ctx context.Context, tx *gorm.DB, resolver *PriceResolver, ativo *models.Ativo, cutoff time.Time, monthOf time.Time) (*models.EvolucaoPatrimonial, error) {
	movs, err := models.GetMovimentacoesUntil(tx, ctx, ativo.ID, cutoff)
	if err != nil {
		return nil, err
	}
	pos := PositionAsOf(movs, cutoff)
	if !pos.Quantidade.IsPositive() {
		return nil, nil
	}

	resolved := resolver.Resolve(ctx, ativo, pos)

	proventos, err := models.SumProventosForMonth(tx, ctx, ativo.ID, monthOf)
	if err != nil {
		return nil, err
	}

	row := models.EvolucaoPatrimonial{
		AtivoId:      ativo.ID,
		Data:         utils.FirstOfMonth(monthOf),
		PrecoAtual:   resolved.Preco,
		Quantidade:   pos.Quantidade,
		CustoTotal:   pos.CostBasis(),
		ProventosMes: proventos,
	}
	if err := models.UpsertEvolucaoPatrimonial(tx, ctx, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// BatchReport summarizes a snapshot batch. A single bad asset never fails
// the whole request; it is counted and logged instead.
type BatchReport struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SnapshotAll snapshots every asset, optionally scoped to one owner.
// Each asset runs in its own transaction so one price-fetch or storage
// error cannot abort the batch. A best-effort redis lock keeps two batch
// runs for the same scope from interleaving.
func SnapshotAll(ctx context.Context, resolver *PriceResolver, asOf time.Time, ownerId string) (BatchReport, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	lockScope := ownerId
	if lockScope == "" {
		lockScope = "all"
	}
	release := utils.OwnerLock("workflow", "SnapshotAll", "snapshotBatch", lockScope, 5*time.Minute)
	defer release()

	ativos, err := models.ListAtivos(db, ctx, ownerId)
	if err != nil {
		return BatchReport{}, err
	}

	var report BatchReport
	for _, ativo := range ativos {
		var row *models.EvolucaoPatrimonial
		err := db.Transaction(func(tx *gorm.DB) error {
			var serr error
			row, serr = SnapshotAtivo(ctx, tx, resolver, ativo, asOf)
			return serr
		})
		if err != nil {
			report.Failed++
			logger.WithFields(logrus.Fields{
				"module":   "workflow",
				"funcName": "SnapshotAll",
				"ativo_id": ativo.ID,
				"ticker":   ativo.Ticker,
				"owner_id": ativo.OwnerId,
			}).Error("snapshot failed: " + err.Error())
			continue
		}
		if row == nil {
			report.Skipped++
			continue
		}
		report.Succeeded++
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	logger.WithFields(logrus.Fields{
		"module":         "workflow",
		"funcName":       "SnapshotAll",
		"correlation_id": correlationId,
		"owner_id":       ownerId,
		"as_of":          asOf.Format("2006-01-02"),
		"succeeded":      report.Succeeded,
		"skipped":        report.Skipped,
		"failed":         report.Failed,
	}).Info("snapshot batch finished")

	return report, nil
}
