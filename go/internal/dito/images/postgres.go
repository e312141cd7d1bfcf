package images

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable is the table seeded by tools/seed_pairs.
const DefaultTable = "image_pairs"

// PostgresSource reads pairs ordered by their position column. Rows are
// streamed from the server, never collected.
type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresSource uses pool to read from table.
func NewPostgresSource(pool *pgxpool.Pool, table string) *PostgresSource {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresSource{pool: pool, table: table}
}

func (s *PostgresSource) Open(ctx context.Context) (Cursor, error) {
	query := fmt.Sprintf(
		"SELECT left_url, right_url FROM %s ORDER BY position",
		pgx.Identifier{s.table}.Sanitize(),
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query image pairs: %w", err)
	}
	return &pgCursor{rows: rows}, nil
}

type pgCursor struct {
	rows pgx.Rows
}

func (c *pgCursor) Next() (Pair, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return Pair{}, fmt.Errorf("iterate image pairs: %w", err)
		}
		return Pair{}, io.EOF
	}

	var p Pair
	if err := c.rows.Scan(&p[0], &p[1]); err != nil {
		return Pair{}, fmt.Errorf("scan image pair: %w", err)
	}
	return p, nil
}

func (c *pgCursor) Close() error {
	c.rows.Close()
	return c.rows.Err()
}
