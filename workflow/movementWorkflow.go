package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/models"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// acquirePostingLock serializes movement posting per asset across instances
// using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB transaction that performs the posting.
func acquirePostingLock(tx *gorm.DB, ownerId string, ativoId int) error {
	lockName := fmt.Sprintf("posting:%s:%d", ownerId, ativoId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for owner_id=%s ativo_id=%d", ownerId, ativoId)
	}
	return nil
}

func releasePostingLock(tx *gorm.DB, ownerId string, ativoId int) {
	lockName := fmt.Sprintf("posting:%s:%d", ownerId, ativoId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

type NewMovimentacao struct {
	AtivoId       int             `json:"ativo_id" binding:"required"`
	Data          time.Time       `json:"data" binding:"required"`
	Operacao      models.Operacao `json:"operacao" binding:"required"`
	Quantidade    decimal.Decimal `json:"quantidade" binding:"required"`
	PrecoUnitario decimal.Decimal `json:"preco_unitario"`
	Taxa          decimal.Decimal `json:"taxa"`
}

// RecordMovement appends one ledger entry and reprojects the asset, as a
// single transaction: the movement row and the asset's derived quantity/
// average-cost fields commit together or not at all.
func RecordMovement(ctx context.Context, input *NewMovimentacao) (*models.Movimentacao, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[models.Ativo](ctx, ownerId, input.AtivoId); err != nil {
		return nil, errors.New("ativo not found")
	}
	if input.Quantidade.IsNegative() || input.Quantidade.IsZero() {
		return nil, errors.New("quantidade must be positive")
	}
	if input.PrecoUnitario.IsNegative() || input.Taxa.IsNegative() {
		return nil, errors.New("preco_unitario and taxa must not be negative")
	}

	logger := config.GetLogger()
	mov := models.Movimentacao{
		AtivoId:       input.AtivoId,
		Data:          input.Data,
		Operacao:      input.Operacao,
		Quantidade:    input.Quantidade,
		PrecoUnitario: input.PrecoUnitario,
		Taxa:          input.Taxa,
	}

	db := config.GetDB()
	err := db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)
		if err := acquirePostingLock(tx, ownerId, input.AtivoId); err != nil {
			return err
		}
		defer releasePostingLock(tx, ownerId, input.AtivoId)

		if err := tx.Create(&mov).Error; err != nil {
			return err
		}
		var ativo models.Ativo
		if err := tx.Where("owner_id = ? AND id = ?", ownerId, input.AtivoId).First(&ativo).Error; err != nil {
			return err
		}
		_, err := RecalculateAtivo(tx, logger, &ativo)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &mov, nil
}

// DeleteMovement removes one ledger entry and reprojects the asset in the
// same transaction. Edits are modeled by callers as delete + recreate.
func DeleteMovement(ctx context.Context, movimentacaoId int) error {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return errors.New("owner id is required")
	}

	logger := config.GetLogger()
	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		tx = tx.WithContext(ctx)

		var mov models.Movimentacao
		if err := tx.First(&mov, movimentacaoId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}
		var ativo models.Ativo
		if err := tx.Where("owner_id = ? AND id = ?", ownerId, mov.AtivoId).First(&ativo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if err := acquirePostingLock(tx, ownerId, ativo.ID); err != nil {
			return err
		}
		defer releasePostingLock(tx, ownerId, ativo.ID)

		if err := tx.Delete(&mov).Error; err != nil {
			return err
		}
		_, err := RecalculateAtivo(tx, logger, &ativo)
		return err
	})
}

// CurrentState is what the API layer reads for one asset: the projected
// quantity and average cost plus a freshly resolved valuation. The resolved
// valuation is written back to the asset row as a memo.
type CurrentState struct {
	Quantidade    decimal.Decimal `json:"quantidade"`
	PrecoMedio    decimal.Decimal `json:"preco_medio"`
	ValorAtual    decimal.Decimal `json:"valor_atual"`
	Rendimento    decimal.Decimal `json:"rendimento"`
	PrecoEstimado bool            `json:"preco_estimado"`
}

func GetCurrentState(ctx context.Context, resolver *PriceResolver, ativoId int) (*CurrentState, error) {
	ativo, err := models.GetAtivo(ctx, ativoId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	movs, err := models.GetMovimentacoesOrdered(db, ctx, ativo.ID)
	if err != nil {
		return nil, err
	}
	pos := ProjectPosition(movs)

	resolved := resolver.Resolve(ctx, ativo, pos)
	valorAtual := resolved.Preco.Mul(pos.Quantidade).Round(2)
	rendimento := valorAtual.Sub(pos.CostBasis())

	if err := db.WithContext(ctx).Model(&models.Ativo{}).
		Where("id = ?", ativo.ID).
		Updates(map[string]interface{}{
			"quantidade":     pos.Quantidade,
			"preco_medio":    pos.PrecoMedio,
			"valor_atual":    valorAtual,
			"rendimento":     rendimento,
			"preco_estimado": resolved.Estimado,
		}).Error; err != nil {
		return nil, err
	}

	return &CurrentState{
		Quantidade:    pos.Quantidade,
		PrecoMedio:    pos.PrecoMedio,
		ValorAtual:    valorAtual,
		Rendimento:    rendimento,
		PrecoEstimado: resolved.Estimado,
	}, nil
}
