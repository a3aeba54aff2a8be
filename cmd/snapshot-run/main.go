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

// snapshot-run takes the monthly valuation snapshot for every asset,
// optionally scoped to one owner. Meant to be wired to a cron-style
// trigger; the engine itself has no scheduler.
func main() {
	owner := flag.String("owner", "", "Optional: restrict the run to one owner id")
	dateStr := flag.String("date", "", "Optional: as-of date (YYYY-MM-DD), defaults to today")
	freshMinutes := flag.Int("price-fresh-minutes", config.IntFromEnv("PRICE_CACHE_TTL_MINUTES", 24*60), "Cached price freshness window in minutes")
	flag.Parse()

	asOf := time.Now().UTC()
	if strings.TrimSpace(*dateStr) != "" {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*dateStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid date: %v\n", err)
			os.Exit(1)
		}
		asOf = d
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())
	ctx = utils.SetUsernameInContext(ctx, "snapshot-run")

	resolver := workflow.NewPriceResolver(
		quotes.NewClient(),
		models.NewPrecoCacheRepo(db, config.GetLogger()),
		time.Duration(*freshMinutes)*time.Minute,
	)

	report, err := workflow.SnapshotAll(ctx, resolver, asOf, strings.TrimSpace(*owner))
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot run done: succeeded=%d skipped=%d failed=%d\n",
		report.Succeeded, report.Skipped, report.Failed)
	if report.Failed > 0 {
		os.Exit(2)
	}
}
