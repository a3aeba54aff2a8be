package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/carteiralab/carteira_backend/models"
	"github.com/carteiralab/carteira_backend/utils"
	"github.com/carteiralab/carteira_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// fixedQuoteProvider serves one price for every symbol, recording lookups.
type fixedQuoteProvider struct {
	price decimal.Decimal
	calls []string
}

func (p *fixedQuoteProvider) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.calls = append(p.calls, symbol)
	return p.price, nil
}

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "carteira_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetOwnerIdInContext(ctx, "owner-1")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func newTestResolver(provider workflow.QuoteProvider) *workflow.PriceResolver {
	repo := models.NewPrecoCacheRepo(config.GetDB(), logrus.New())
	return workflow.NewPriceResolver(provider, repo, time.Hour)
}

func TestMovementPostingUpdatesDerivedPosition(t *testing.T) {
	ctx := setupIntegration(t)

	ativo, err := models.CreateAtivo(ctx, &models.NewAtivo{
		Ticker:        "PETR4",
		Nome:          "Petrobras PN",
		Moeda:         models.MoedaBRL,
		CategoriaTipo: models.CategoriaRendaVariavel,
	})
	if err != nil {
		t.Fatalf("CreateAtivo: %v", err)
	}

	post := func(op models.Operacao, day int, qty, preco int64) {
		t.Helper()
		_, err := workflow.RecordMovement(ctx, &workflow.NewMovimentacao{
			AtivoId:       ativo.ID,
			Data:          time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
			Operacao:      op,
			Quantidade:    decimal.NewFromInt(qty),
			PrecoUnitario: decimal.NewFromInt(preco),
		})
		if err != nil {
			t.Fatalf("RecordMovement(%s): %v", op, err)
		}
	}

	// 10 @ 100, 10 @ 120, sell 5: average cost stays 110.
	post(models.OperacaoCompra, 5, 10, 100)
	post(models.OperacaoCompra, 10, 10, 120)
	post(models.OperacaoVenda, 15, 5, 150)

	reloaded, err := models.GetAtivo(ctx, ativo.ID)
	if err != nil {
		t.Fatalf("GetAtivo: %v", err)
	}
	if reloaded.Quantidade.Cmp(decimal.NewFromInt(15)) != 0 {
		t.Fatalf("expected quantidade=15; got %s", reloaded.Quantidade)
	}
	if reloaded.PrecoMedio.Cmp(decimal.NewFromInt(110)) != 0 {
		t.Fatalf("expected preco_medio=110; got %s", reloaded.PrecoMedio)
	}

	provider := &fixedQuoteProvider{price: decimal.NewFromInt(130)}
	state, err := workflow.GetCurrentState(ctx, newTestResolver(provider), ativo.ID)
	if err != nil {
		t.Fatalf("GetCurrentState: %v", err)
	}
	if state.ValorAtual.Cmp(decimal.NewFromInt(1950)) != 0 {
		t.Fatalf("expected valor_atual=1950; got %s", state.ValorAtual)
	}
	// cost basis 1650, market value 1950
	if state.Rendimento.Cmp(decimal.NewFromInt(300)) != 0 {
		t.Fatalf("expected rendimento=300; got %s", state.Rendimento)
	}
	if state.PrecoEstimado {
		t.Fatal("live quote must not be marked estimated")
	}
	if len(provider.calls) == 0 || provider.calls[0] != "PETR4.SA" {
		t.Fatalf("expected B3-suffixed lookup; got %v", provider.calls)
	}

	// Deleting the sale restores the pre-sale position in the same transaction.
	var venda models.Movimentacao
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("ativo_id = ? AND operacao = ?", ativo.ID, models.OperacaoVenda).First(&venda).Error; err != nil {
		t.Fatalf("fetch venda: %v", err)
	}
	if err := workflow.DeleteMovement(ctx, venda.ID); err != nil {
		t.Fatalf("DeleteMovement: %v", err)
	}
	reloaded, err = models.GetAtivo(ctx, ativo.ID)
	if err != nil {
		t.Fatalf("GetAtivo(after delete): %v", err)
	}
	if reloaded.Quantidade.Cmp(decimal.NewFromInt(20)) != 0 {
		t.Fatalf("expected quantidade=20 after removing the sale; got %s", reloaded.Quantidade)
	}
}

func TestSnapshotBatchIsIdempotentAndAggregatesProventos(t *testing.T) {
	ctx := setupIntegration(t)

	held, err := models.CreateAtivo(ctx, &models.NewAtivo{
		Ticker:        "ITSA4",
		Nome:          "Itaúsa PN",
		Moeda:         models.MoedaBRL,
		CategoriaTipo: models.CategoriaRendaVariavel,
	})
	if err != nil {
		t.Fatalf("CreateAtivo(held): %v", err)
	}
	empty, err := models.CreateAtivo(ctx, &models.NewAtivo{
		Ticker:        "VALE3",
		Nome:          "Vale ON",
		Moeda:         models.MoedaBRL,
		CategoriaTipo: models.CategoriaRendaVariavel,
	})
	if err != nil {
		t.Fatalf("CreateAtivo(empty): %v", err)
	}

	if _, err := workflow.RecordMovement(ctx, &workflow.NewMovimentacao{
		AtivoId:       held.ID,
		Data:          time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Operacao:      models.OperacaoCompra,
		Quantidade:    decimal.NewFromInt(100),
		PrecoUnitario: decimal.RequireFromString("9.80"),
	}); err != nil {
		t.Fatalf("RecordMovement: %v", err)
	}

	// Two dividends in the snapshot month, one outside it.
	for _, p := range []struct {
		day   int
		month time.Month
		valor string
	}{
		{10, time.January, "5.00"},
		{20, time.January, "3.50"},
		{10, time.February, "99.00"},
	} {
		if _, err := models.CreateProvento(ctx, &models.NewProvento{
			AtivoId: held.ID,
			Data:    time.Date(2026, p.month, p.day, 0, 0, 0, 0, time.UTC),
			Valor:   decimal.RequireFromString(p.valor),
		}); err != nil {
			t.Fatalf("CreateProvento: %v", err)
		}
	}

	provider := &fixedQuoteProvider{price: decimal.RequireFromString("10.40")}
	resolver := newTestResolver(provider)
	asOf := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)

	report, err := workflow.SnapshotAll(ctx, resolver, asOf, "owner-1")
	if err != nil {
		t.Fatalf("SnapshotAll: %v", err)
	}
	if report.Succeeded != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("expected 1 succeeded / 1 skipped; got %+v", report)
	}

	// Re-run: same counts, still one row per asset+month.
	if _, err := workflow.SnapshotAll(ctx, resolver, asOf, "owner-1"); err != nil {
		t.Fatalf("SnapshotAll(rerun): %v", err)
	}

	db := config.GetDB()
	var total int64
	if err := db.WithContext(ctx).Model(&models.EvolucaoPatrimonial{}).Count(&total).Error; err != nil {
		t.Fatalf("count snapshot rows: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected exactly 1 snapshot row after two runs; got %d", total)
	}

	row, err := models.GetEvolucaoForMonth(db, ctx, held.ID, asOf)
	if err != nil {
		t.Fatalf("GetEvolucaoForMonth: %v", err)
	}
	if row == nil {
		t.Fatal("expected a snapshot row for the held asset")
	}
	if !row.Data.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected row keyed to first of month; got %s", row.Data)
	}
	if row.ProventosMes.Cmp(decimal.RequireFromString("8.50")) != 0 {
		t.Fatalf("expected proventos_mes=8.50 (5.00+3.50); got %s", row.ProventosMes)
	}
	if row.ValorTotal.Cmp(decimal.RequireFromString("1040.00")) != 0 {
		t.Fatalf("expected valor_total=1040.00; got %s", row.ValorTotal)
	}

	// The zero-quantity asset never gets a history row.
	var emptyRows int64
	if err := db.WithContext(ctx).Model(&models.EvolucaoPatrimonial{}).Where("ativo_id = ?", empty.ID).Count(&emptyRows).Error; err != nil {
		t.Fatalf("count empty-asset rows: %v", err)
	}
	if emptyRows != 0 {
		t.Fatalf("expected no rows for never-held asset; got %d", emptyRows)
	}
}

func TestBackfillDryRunPersistsNothing(t *testing.T) {
	ctx := setupIntegration(t)

	ativo, err := models.CreateAtivo(ctx, &models.NewAtivo{
		Ticker:        "BBAS3",
		Nome:          "Banco do Brasil ON",
		Moeda:         models.MoedaBRL,
		CategoriaTipo: models.CategoriaRendaVariavel,
	})
	if err != nil {
		t.Fatalf("CreateAtivo: %v", err)
	}
	if _, err := workflow.RecordMovement(ctx, &workflow.NewMovimentacao{
		AtivoId:       ativo.ID,
		Data:          time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Operacao:      models.OperacaoCompra,
		Quantidade:    decimal.NewFromInt(50),
		PrecoUnitario: decimal.NewFromInt(28),
	}); err != nil {
		t.Fatalf("RecordMovement: %v", err)
	}

	resolver := newTestResolver(&fixedQuoteProvider{price: decimal.NewFromInt(30)})
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	results, err := workflow.BackfillEvolucao(ctx, resolver, "owner-1", from, to, true)
	if err != nil {
		t.Fatalf("BackfillEvolucao(dry-run): %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 dry-run results (Feb, Mar); got %d", len(results))
	}
	for _, r := range results {
		if r.Persisted {
			t.Fatalf("dry-run must not persist; got %+v", r)
		}
		if r.Error != "" {
			t.Fatalf("unexpected per-row error: %s", r.Error)
		}
	}

	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&models.EvolucaoPatrimonial{}).Count(&count).Error; err != nil {
		t.Fatalf("count after dry-run: %v", err)
	}
	if count != 0 {
		t.Fatalf("dry-run wrote %d rows", count)
	}

	results, err = workflow.BackfillEvolucao(ctx, resolver, "owner-1", from, to, false)
	if err != nil {
		t.Fatalf("BackfillEvolucao: %v", err)
	}
	for _, r := range results {
		if !r.Persisted {
			t.Fatalf("expected persisted row; got %+v", r)
		}
	}
	if err := db.WithContext(ctx).Model(&models.EvolucaoPatrimonial{}).Count(&count).Error; err != nil {
		t.Fatalf("count after backfill: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected one row per month boundary; got %d", count)
	}

	// Both rows replay the January ledger: 50 shares at the quoted price.
	for _, month := range []time.Time{from, to} {
		row, err := models.GetEvolucaoForMonth(db, ctx, ativo.ID, month)
		if err != nil {
			t.Fatalf("GetEvolucaoForMonth(%s): %v", month.Format("2006-01"), err)
		}
		if row == nil {
			t.Fatalf("missing row for %s", month.Format("2006-01"))
		}
		if row.Quantidade.Cmp(decimal.NewFromInt(50)) != 0 {
			t.Fatalf("%s: expected quantidade=50; got %s", month.Format("2006-01"), row.Quantidade)
		}
		if row.ValorTotal.Cmp(decimal.NewFromInt(1500)) != 0 {
			t.Fatalf("%s: expected valor_total=1500; got %s", month.Format("2006-01"), row.ValorTotal)
		}
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("carteira-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("carteira-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=carteira_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
