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

// Ativo is a tracked holding. The quantidade/preco_medio/valor_atual/
// rendimento/preco_estimado fields are a memo of the last projection and
// price resolution; they are owned by the engine and never set by callers.
// Source of truth is the movimentacoes ledger.
type Ativo struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OwnerId       string          `gorm:"uniqueIndex:idx_ativos_ticker_owner;index;size:100;not null" json:"owner_id"`
	Ticker        string          `gorm:"uniqueIndex:idx_ativos_ticker_owner;size:20;not null" json:"ticker" binding:"required"`
	Nome          string          `gorm:"size:200;not null" json:"nome" binding:"required"`
	Moeda         Moeda           `gorm:"type:enum('BRL','USD','EUR','GBP');default:BRL" json:"moeda"`
	CategoriaTipo CategoriaTipo   `gorm:"type:enum('RENDA_FIXA','RENDA_VARIAVEL','FUNDOS','EXTERIOR');not null" json:"categoria_tipo" binding:"required"`
	Subtipo       string          `gorm:"size:20" json:"subtipo"`
	PesoAlvo      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"peso_alvo"`
	Vencimento    *time.Time      `json:"vencimento"`
	Observacao    string          `gorm:"type:text" json:"observacao"`
	Icone         string          `gorm:"size:255" json:"icone"`

	Quantidade    decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"quantidade"`
	PrecoMedio    decimal.Decimal `gorm:"type:decimal(20,6);default:0" json:"preco_medio"`
	ValorAtual    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"valor_atual"`
	Rendimento    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"rendimento"`
	PrecoEstimado *bool           `gorm:"not null;default:false" json:"preco_estimado"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAtivo struct {
	Ticker        string          `json:"ticker" binding:"required"`
	Nome          string          `json:"nome" binding:"required"`
	Moeda         Moeda           `json:"moeda"`
	CategoriaTipo CategoriaTipo   `json:"categoria_tipo" binding:"required"`
	Subtipo       string          `json:"subtipo"`
	PesoAlvo      decimal.Decimal `json:"peso_alvo"`
	Vencimento    *time.Time      `json:"vencimento"`
	Observacao    string          `json:"observacao"`
	Icone         string          `json:"icone"`
}

func CreateAtivo(ctx context.Context, input *NewAtivo) (*Ativo, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}
	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}

	moeda := input.Moeda
	if moeda == "" {
		moeda = MoedaBRL
	}

	ativo := Ativo{
		OwnerId:       ownerId,
		Ticker:        input.Ticker,
		Nome:          input.Nome,
		Moeda:         moeda,
		CategoriaTipo: input.CategoriaTipo,
		Subtipo:       input.Subtipo,
		PesoAlvo:      input.PesoAlvo,
		Vencimento:    input.Vencimento,
		Observacao:    input.Observacao,
		Icone:         input.Icone,
		PrecoEstimado: utils.NewFalse(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&ativo).Error; err != nil {
		return nil, err
	}
	return &ativo, nil
}

func GetAtivo(ctx context.Context, id int) (*Ativo, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var ativo Ativo
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerId, id).First(&ativo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &ativo, nil
}

// GetAtivoByTicker looks up the owner's asset for a ticker. Used by import
// flows that reference assets by ticker instead of id.
func GetAtivoByTicker(ctx context.Context, ticker string) (*Ativo, error) {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var ativo Ativo
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("owner_id = ? AND ticker = ?", ownerId, ticker).First(&ativo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &ativo, nil
}

// ListAtivos returns every asset, scoped to one owner when ownerId is not blank.
func ListAtivos(tx *gorm.DB, ctx context.Context, ownerId string) ([]*Ativo, error) {
	var ativos []*Ativo
	dbCtx := tx.WithContext(ctx).Order("ticker ASC")
	if ownerId != "" {
		dbCtx = dbCtx.Where("owner_id = ?", ownerId)
	}
	if err := dbCtx.Find(&ativos).Error; err != nil {
		return nil, err
	}
	return ativos, nil
}

// DeleteAtivo removes an asset. Assets with ledger rows are protected:
// the delete fails unless cascade is set by an administrative caller,
// in which case movements and dividends go in the same transaction.
func DeleteAtivo(ctx context.Context, id int, cascade bool) error {
	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return errors.New("owner id is required")
	}
	if err := utils.ValidateResourceId[Ativo](ctx, ownerId, id); err != nil {
		return err
	}

	db := config.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		var movCount int64
		if err := tx.WithContext(ctx).Model(&Movimentacao{}).Where("ativo_id = ?", id).Count(&movCount).Error; err != nil {
			return err
		}
		if movCount > 0 {
			if !cascade || !utils.GetIsAdminFromContext(ctx) {
				return errors.New("ativo has movements and cannot be deleted")
			}
			if err := tx.WithContext(ctx).Where("ativo_id = ?", id).Delete(&Movimentacao{}).Error; err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Where("ativo_id = ?", id).Delete(&Provento{}).Error; err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Where("ativo_id = ?", id).Delete(&EvolucaoPatrimonial{}).Error; err != nil {
				return err
			}
		}
		return tx.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerId, id).Delete(&Ativo{}).Error
	})
}
