package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fabianovilela/buymore/db"
	"github.com/fabianovilela/buymore/pkg/pagination"
)

// PostgreSQL error codes the repositories translate into domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns and verifies the connection.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies the embedded migrations that are not yet applied.
func RunMigrations(ctx context.Context, databaseURL string) error {
	src, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	zctx.From(ctx).Info("Migrations applied",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// inTx runs fn in a transaction on pool, committing when fn returns nil.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, fn)
}

// pgError returns the PostgreSQL error behind err when its code is one of codes.
func pgError(err error, codes ...string) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && slices.Contains(codes, pgErr.Code) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	_, ok := pgError(err, codeUniqueViolation)
	return ok
}

func isForeignKeyViolation(err error) bool {
	_, ok := pgError(err, codeForeignKeyViolation)
	return ok
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere, or "" for no filter.
func containsPattern(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(s) + "%"
}

// listPage counts the rows matching args and fetches one page of them.
// listSQL takes args followed by LIMIT and OFFSET placeholders.
func listPage[T any](
	ctx context.Context,
	q querier,
	countSQL, listSQL string,
	p pagination.Request,
	scan pgx.RowToFunc[T],
	args ...any,
) (pagination.Page[T], error) {
	var total int64
	if err := q.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return pagination.Page[T]{}, fmt.Errorf("counting rows: %w", err)
	}

	rows, err := q.Query(ctx, listSQL, append(slices.Clone(args), p.Limit, p.Offset())...)
	if err != nil {
		return pagination.Page[T]{}, fmt.Errorf("listing rows: %w", err)
	}
	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return pagination.Page[T]{}, fmt.Errorf("scanning rows: %w", err)
	}
	return pagination.NewPage(items, total, p), nil
}
