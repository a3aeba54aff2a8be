package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/models"
	"github.com/carteiralab/carteira_backend/quotes"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/carteiralab/carteira_backend/workflow"
	"github.com/google/uuid"
)

// evolucao-backfill regenerates monthly snapshot rows over a month range.
// Safe to re-run (idempotent upserts); --dry-run prints the would-be rows
// without persisting anything.
func main() {
	owner := flag.String("owner", "", "Required: owner id")
	fromStr := flag.String("from", "", "Required: first month (YYYY-MM)")
	toStr := flag.String("to", "", "Required: last month (YYYY-MM)")
	dryRun := flag.Bool("dry-run", false, "Compute and print would-be rows without persisting")
	freshMinutes := flag.Int("price-fresh-minutes", config.IntFromEnv("PRICE_CACHE_TTL_MINUTES", 24*60), "Cached price freshness window in minutes")
	flag.Parse()

	if strings.TrimSpace(*owner) == "" {
		fmt.Fprintln(os.Stderr, "--owner is required")
		os.Exit(1)
	}
	from, err := time.Parse("2006-01", strings.TrimSpace(*fromStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --from month: %v\n", err)
		os.Exit(1)
	}
	to, err := time.Parse("2006-01", strings.TrimSpace(*toStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --to month: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	ctx = utils.SetUsernameInContext(ctx, "evolucao-backfill")
	ctx = utils.SetOwnerIdInContext(ctx, strings.TrimSpace(*owner))

	resolver := workflow.NewPriceResolver(
		quotes.NewClient(),
		models.NewPrecoCacheRepo(db, config.GetLogger()),
		time.Duration(*freshMinutes)*time.Minute,
	)

	results, err := workflow.BackfillEvolucao(ctx, resolver, strings.TrimSpace(*owner), from, to, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}

	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL %s %s: %s\n", r.Ticker, r.Mes.Format("2006-01"), r.Error)
			continue
		}
		fmt.Printf("%s %s qty=%s preco=%s valor=%s custo=%s proventos=%s persisted=%v\n",
			r.Ticker, r.Mes.Format("2006-01"),
			r.Quantidade.String(), r.PrecoAtual.String(), r.ValorTotal.String(),
			r.CustoTotal.String(), r.ProventosMes.String(), r.Persisted)
	}
	fmt.Printf("backfill done: rows=%d failed=%d dry_run=%v\n", len(results), failed, *dryRun)
	if failed > 0 {
		os.Exit(2)
	}
}
