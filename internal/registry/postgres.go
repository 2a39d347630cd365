package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/route-beacon/as-resolver/internal/metrics"
	"go.uber.org/zap"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TxStarter is satisfied by *pgxpool.Pool.
type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres reads the as_names table in AS number order.
type Postgres struct {
	q      Querier
	logger *zap.Logger
}

func NewPostgres(q Querier, logger *zap.Logger) *Postgres {
	return &Postgres{q: q, logger: logger}
}

func (p *Postgres) Each(ctx context.Context, fn func(Entry) error) error {
	rows, err := p.q.Query(ctx, "SELECT asn, name FROM as_names ORDER BY asn")
	if err != nil {
		metrics.StreamUnavailableTotal.WithLabelValues("registry").Inc()
		return fmt.Errorf("%w: querying as_names: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			asn  int64
			name string
		)
		if err := rows.Scan(&asn, &name); err != nil {
			return fmt.Errorf("scanning as_names row: %w", err)
		}
		metrics.RegistryEntriesTotal.Inc()
		if err := fn(Entry{ASN: uint32(asn), Name: name}); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterating as_names: %v", ErrUnavailable, err)
	}
	return nil
}

// Import replaces the contents of as_names with the entries of src in one
// transaction. A later entry for the same AS number replaces an earlier one.
func Import(ctx context.Context, db TxStarter, src Registry, logger *zap.Logger) (int64, error) {
	start := time.Now()

	rows, err := collectRows(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("reading source registry: %w", err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM as_names"); err != nil {
		return 0, fmt.Errorf("clearing as_names: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"as_names"}, []string{"asn", "name"}, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copying as_names: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	metrics.RunDuration.WithLabelValues("import").Observe(time.Since(start).Seconds())
	logger.Info("registry imported", zap.Int64("rows", n), zap.Duration("took", time.Since(start)))
	return n, nil
}

// collectRows reads src into COPY rows, keeping the last name per AS number
// at the position of its first occurrence.
func collectRows(ctx context.Context, src Registry) ([][]any, error) {
	index := make(map[uint32]int)
	var rows [][]any
	err := src.Each(ctx, func(e Entry) error {
		if i, ok := index[e.ASN]; ok {
			rows[i][1] = e.Name
			return nil
		}
		index[e.ASN] = len(rows)
		rows = append(rows, []any{int64(e.ASN), e.Name})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
