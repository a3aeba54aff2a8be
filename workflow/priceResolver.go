package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrQuoteNotFound is returned by QuoteProvider implementations when the
// symbol exists nowhere upstream, as opposed to a transport failure.
// The resolver treats both the same way (fallback path).
var ErrQuoteNotFound = errors.New("quote not found")

// QuoteProvider is the external market-data collaborator. Calls block on
// network I/O and must carry their own short timeout.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceCacheStore is the persistence side of price resolution.
// models.PrecoCacheRepo is the production implementation.
type PriceCacheStore interface {
	GetFresh(ctx context.Context, ticker string, moeda models.Moeda, maxAge time.Duration) (*models.CachedPreco, error)
	GetAny(ctx context.Context, ticker string, moeda models.Moeda) (*models.CachedPreco, error)
	Put(ctx context.Context, ticker string, moeda models.Moeda, preco decimal.Decimal, estimado bool) error
}

// ResolvedPreco is the outcome of price resolution. The absence of a live
// quote is a normal, typed outcome, never an error: downstream valuation
// must not block on missing data.
type ResolvedPreco struct {
	Preco    decimal.Decimal
	Estimado bool
}

// PriceResolver resolves a current price for an asset, blending the
// time-bounded cache, the external quote provider and the fixed-income
// fallback computed from the ledger itself.
//
// FreshFor is caller-configurable: interactive reads use a short window,
// batch snapshot runs accept a day-old price.
type PriceResolver struct {
	Provider QuoteProvider
	Cache    PriceCacheStore
	FreshFor time.Duration
	Logger   *logrus.Logger
}

func NewPriceResolver(provider QuoteProvider, cache PriceCacheStore, freshFor time.Duration) *PriceResolver {
	return &PriceResolver{
		Provider: provider,
		Cache:    cache,
		FreshFor: freshFor,
		Logger:   config.GetLogger(),
	}
}

// QuoteSymbol maps a ticker to the provider's currency-suffixed convention:
// B3 listings get ".SA", London listings ".L", everything else is queried bare.
func QuoteSymbol(ticker string, moeda models.Moeda) string {
	switch moeda {
	case models.MoedaBRL:
		return ticker + ".SA"
	case models.MoedaGBP:
		return ticker + ".L"
	}
	return ticker
}

// Resolve returns (preco, estimado) for the asset.
//
// Fixed income is never quoted externally: its price is the amortized
// average cost per unit from the projected position, and it is never
// marked estimated even though it is a proxy. For everything else the
// order is fresh cache, provider (with write-through), stale cache
// marked estimated, and finally (0, true).
func (r *PriceResolver) Resolve(ctx context.Context, ativo *models.Ativo, pos Posicao) ResolvedPreco {
	if ativo.CategoriaTipo.IsRendaFixa() {
		return ResolvedPreco{Preco: pos.PrecoMedio, Estimado: false}
	}

	if cached, err := r.Cache.GetFresh(ctx, ativo.Ticker, ativo.Moeda, r.FreshFor); err == nil && cached != nil {
		return ResolvedPreco{Preco: cached.Preco, Estimado: cached.Estimado}
	} else if err != nil {
		config.LogError(r.Logger, "workflow", "PriceResolver.Resolve", "cache read failed", ativo.Ticker, err)
	}

	preco, err := r.fetchQuote(ctx, ativo)
	if err == nil {
		if cerr := r.Cache.Put(ctx, ativo.Ticker, ativo.Moeda, preco, false); cerr != nil {
			// Cache failure does not fail price resolution.
			config.LogError(r.Logger, "workflow", "PriceResolver.Resolve", "cache write-through failed", ativo.Ticker, cerr)
		}
		return ResolvedPreco{Preco: preco, Estimado: false}
	}

	r.Logger.WithFields(logrus.Fields{
		"module": "workflow",
		"ticker": ativo.Ticker,
		"moeda":  ativo.Moeda,
	}).Warn("quote lookup failed, falling back to cached price: " + err.Error())

	if cached, cerr := r.Cache.GetAny(ctx, ativo.Ticker, ativo.Moeda); cerr == nil && cached != nil {
		return ResolvedPreco{Preco: cached.Preco, Estimado: true}
	}
	return ResolvedPreco{Preco: decimal.Zero, Estimado: true}
}

// fetchQuote tries the currency-suffixed symbol first, then the bare
// ticker when the suffixed one is unknown upstream.
func (r *PriceResolver) fetchQuote(ctx context.Context, ativo *models.Ativo) (decimal.Decimal, error) {
	symbol := QuoteSymbol(ativo.Ticker, ativo.Moeda)
	preco, err := r.Provider.GetQuote(ctx, symbol)
	if err == nil {
		return preco, nil
	}
	if errors.Is(err, ErrQuoteNotFound) && symbol != ativo.Ticker {
		return r.Provider.GetQuote(ctx, ativo.Ticker)
	}
	return decimal.Zero, err
}
