package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"brigata/internal/core/tx"
	"brigata/pkg/logger"
)

var tracer = otel.Tracer("brigata/storage")

// statementTimeout bounds every statement inside a managed transaction.
// Lot allocation holds row locks; a runaway query must not hold them forever.
const statementTimeout = 30 * time.Second

var _ tx.Manager = (*TxManager)(nil)

// TxManager runs functions inside a pgx transaction carried through context.
// Repositories pick the transaction up via GetQuerier, so a ledger write, its
// lot decrements, and the period event land in the same transaction without
// any of them knowing about each other.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{pool: pool.Pool}
}

type txKey struct{}

// Tx is the context-carried transaction handle.
type Tx struct {
	pgx.Tx
}

// RunInTransaction executes fn inside a transaction. A nested call joins the
// transaction already in ctx instead of opening a second one.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.GetTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "tx",
		trace.WithAttributes(attribute.String("db.system", "postgresql")))
	defer span.End()

	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := pgTx.Exec(ctx,
		fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", statementTimeout.Milliseconds())); err != nil {
		_ = pgTx.Rollback(ctx)
		return fmt.Errorf("set statement_timeout: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, &Tx{Tx: pgTx})

	if err := fn(txCtx); err != nil {
		// Rollback on a fresh context so a cancelled request still releases locks.
		if rbErr := pgTx.Rollback(context.Background()); rbErr != nil {
			logger.Error(ctx, "tx rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetTx returns the transaction carried in ctx, or nil outside a transaction.
func (m *TxManager) GetTx(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// Querier is the subset of pgx shared by pool and transaction. Repositories
// query through it and stay oblivious to transaction boundaries.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the active transaction if one is in ctx, else the pool.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.GetTx(ctx); t != nil {
		return t.Tx
	}
	return m.pool
}
