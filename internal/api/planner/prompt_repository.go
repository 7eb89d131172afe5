package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/itinero-app/itinero/internal/types"
)

var _ PromptRepository = (*PostgresPromptRepository)(nil)

// PromptRepository serves versioned prompt templates. Templates live in the
// prompts table so wording changes never require a redeploy.
type PromptRepository interface {
	GetPrompt(ctx context.Context, name string) (string, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresPromptRepository struct {
	logger *slog.Logger
	pgpool DB
	cache  *gocache.Cache
}

func NewPostgresPromptRepository(pgpool DB, cacheTTL time.Duration, logger *slog.Logger) *PostgresPromptRepository {
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PostgresPromptRepository{
		logger: logger,
		pgpool: pgpool,
		cache:  gocache.New(cacheTTL, 2*cacheTTL),
	}
}

func (r *PostgresPromptRepository) GetPrompt(ctx context.Context, name string) (string, error) {
	if cached, found := r.cache.Get(name); found {
		return cached.(string), nil
	}

	query := `SELECT value FROM prompts WHERE name = $1`
	var value string
	if err := r.pgpool.QueryRow(ctx, query, name).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("prompt %q: %w", name, types.ErrPromptNotFound)
		}
		return "", fmt.Errorf("failed to load prompt %q: %w", name, err)
	}

	r.cache.SetDefault(name, value)
	return value, nil
}
