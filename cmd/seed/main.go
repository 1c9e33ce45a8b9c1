package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/auth"
	"expensetracker/internal/config"
	"expensetracker/internal/db"
	apperrors "expensetracker/internal/errors"
	"expensetracker/internal/logger"
	"expensetracker/internal/prompt"
	"expensetracker/internal/repository"
	"expensetracker/internal/service"
)

// SeedExpenseData is one entry of the import file.
type SeedExpenseData struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

func main() {
	username := flag.String("username", "", "user to create or reuse (prompted when empty)")
	source := flag.String("expenses", "", "optional JSON file or http(s) URL with expenses to import")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.New(cfg)

	if err := run(cfg, log, prompt.New(), *username, *source); err != nil {
		log.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// openDB is replaced in tests.
var openDB = db.Open

func run(cfg *config.Config, log *slog.Logger, p *prompt.Prompter, username, source string) error {
	log.Info("starting seed script")

	// Connect to database
	gormDB, err := openDB(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	log.Info("connected to database", slog.String("driver", cfg.DBDriver))

	// Run migrations to ensure schema is up to date
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	if username == "" {
		if username, err = p.Line("Username: "); err != nil {
			return err
		}
	}
	password, err := p.Password("Password: ")
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	authService := service.NewAuthService(
		repository.NewUserRepository(gormDB),
		auth.NewBcryptHasher(cfg.BcryptCost, cfg.HashWorkers),
		tokens,
	)
	expenseService := service.NewExpenseService(repository.NewExpenseRepository(gormDB), nil, cfg.ListCacheTTL)

	ctx := context.Background()
	identity, err := ensureUser(ctx, authService, username, password)
	if err != nil {
		return err
	}
	log.Info("user ready", slog.String("username", identity.Username), slog.String("user_id", identity.UserID.String()))

	if source == "" {
		return nil
	}

	items, err := loadExpenses(source)
	if err != nil {
		return err
	}
	log.Info("loaded expenses", slog.Int("count", len(items)), slog.String("source", source))

	created, skipped := importExpenses(ctx, log, expenseService, identity, items)
	log.Info("seed completed",
		slog.Int("created", created),
		slog.Int("skipped", skipped),
	)
	return nil
}

// ensureUser registers username, or logs in when it already exists.
func ensureUser(ctx context.Context, authService service.AuthService, username, password string) (auth.Identity, error) {
	user, err := authService.Register(ctx, username, password)
	if errors.Is(err, apperrors.ErrDuplicateUsername) {
		_, _, user, err = authService.Login(ctx, username, password)
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{UserID: user.ID, Username: user.Username}, nil
}

// loadExpenses reads the import list from a local file or an http(s) URL.
func loadExpenses(source string) ([]SeedExpenseData, error) {
	var body io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch expenses: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("expenses source returned status code: %d", resp.StatusCode)
		}
		body = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open expenses file: %w", err)
		}
		body = f
	}
	defer body.Close()

	var items []SeedExpenseData
	if err := json.NewDecoder(body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return items, nil
}

// importExpenses creates each entry through the expense service so the usual
// validation applies. Invalid entries are skipped and logged.
func importExpenses(ctx context.Context, log *slog.Logger, svc service.ExpenseService, identity auth.Identity, items []SeedExpenseData) (created, skipped int) {
	for i, item := range items {
		if _, err := svc.Create(ctx, identity, item.Description, item.Amount); err != nil {
			log.Warn("skipping expense", slog.Int("index", i), slog.Any("error", err))
			skipped++
			continue
		}
		created++
	}
	return created, skipped
}
