package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PrecoAtivoCache is a time-bounded memo of the last resolved price per
// (ticker, moeda). Concurrent writers race benignly: last write wins, rows
// are written atomically via upsert.
type PrecoAtivoCache struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Ticker       string          `gorm:"uniqueIndex:idx_preco_cache_ticker_moeda;size:20;not null" json:"ticker"`
	Moeda        Moeda           `gorm:"uniqueIndex:idx_preco_cache_ticker_moeda;type:enum('BRL','USD','EUR','GBP');default:BRL" json:"moeda"`
	Preco        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"preco"`
	Estimado     *bool           `gorm:"not null;default:false" json:"estimado"`
	AtualizadoEm time.Time       `gorm:"not null" json:"atualizado_em"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CachedPreco is what price resolution reads back from the cache layers.
type CachedPreco struct {
	Preco        decimal.Decimal `json:"preco"`
	Estimado     bool            `json:"estimado"`
	AtualizadoEm time.Time       `json:"atualizado_em"`
}

// PrecoCacheRepo is the gorm-backed cache store, with a redis memo in front
// of the table. The redis layer is nil-safe: without redis every read goes
// to the database.
type PrecoCacheRepo struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewPrecoCacheRepo(db *gorm.DB, logger *logrus.Logger) *PrecoCacheRepo {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &PrecoCacheRepo{DB: db, Logger: logger}
}

func precoCacheRedisKey(ticker string, moeda Moeda) string {
	return fmt.Sprintf("precoCache:%s:%s", ticker, moeda)
}

// GetFresh returns the cached price when it is younger than maxAge.
func (r *PrecoCacheRepo) GetFresh(ctx context.Context, ticker string, moeda Moeda, maxAge time.Duration) (*CachedPreco, error) {
	var memo CachedPreco
	exists, err := config.GetRedisObject(precoCacheRedisKey(ticker, moeda), &memo)
	if err == nil && exists && time.Since(memo.AtualizadoEm) <= maxAge {
		return &memo, nil
	}

	cached, err := r.GetAny(ctx, ticker, moeda)
	if err != nil || cached == nil {
		return nil, err
	}
	if time.Since(cached.AtualizadoEm) > maxAge {
		return nil, nil
	}
	return cached, nil
}

// GetAny returns the cached price regardless of age, nil when the pair was
// never resolved.
func (r *PrecoCacheRepo) GetAny(ctx context.Context, ticker string, moeda Moeda) (*CachedPreco, error) {
	var row PrecoAtivoCache
	err := r.DB.WithContext(ctx).
		Where("ticker = ? AND moeda = ?", ticker, moeda).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &CachedPreco{
		Preco:        row.Preco,
		Estimado:     utils.DereferencePtr(row.Estimado),
		AtualizadoEm: row.AtualizadoEm,
	}, nil
}

// Put writes through the cache atomically. Transient lock contention is
// retried up to 3 times with exponential backoff; exhausting retries is
// reported but callers treat it as non-fatal (price resolution already has
// the fresh value in hand).
func (r *PrecoCacheRepo) Put(ctx context.Context, ticker string, moeda Moeda, preco decimal.Decimal, estimado bool) error {
	now := time.Now().UTC()
	row := PrecoAtivoCache{
		Ticker:       ticker,
		Moeda:        moeda,
		Preco:        preco,
		Estimado:     &estimado,
		AtualizadoEm: now,
	}

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = r.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "ticker"}, {Name: "moeda"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"preco", "estimado", "atualizado_em", "updated_at",
			}),
		}).Create(&row).Error
		if err == nil {
			break
		}
		if !isLockContention(err) {
			return err
		}
		config.LogWarn(r.Logger, "models", "PrecoCacheRepo.Put", "lock contention on preco cache upsert", ticker, err.Error())
		time.Sleep(time.Duration(1<<attempt) * 50 * time.Millisecond)
	}
	if err != nil {
		return err
	}

	memo := CachedPreco{Preco: preco, Estimado: estimado, AtualizadoEm: now}
	if rerr := config.SetRedisObject(precoCacheRedisKey(ticker, moeda), &memo, 24*time.Hour); rerr != nil {
		config.LogWarn(r.Logger, "models", "PrecoCacheRepo.Put", "redis memo write failed", ticker, rerr.Error())
	}
	return nil
}

// MySQL 1213 = deadlock, 1205 = lock wait timeout.
func isLockContention(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}
