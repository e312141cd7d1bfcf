package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/dito/go/internal/dbconfig"
	"github.com/mcdev12/dito/go/internal/dito/images"
)

// execer is satisfied by pgx.Tx and *pgxpool.Pool.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type summary struct {
	total    int
	inserted int
	skipped  int
}

func main() {
	path := "data/image_data.csv"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	table := images.DefaultTable
	if len(os.Args) > 2 {
		table = os.Args[2]
	}
	ctx := context.Background()

	// 1) Open the pair csv
	cur, err := images.NewCSVSource(path).Open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open csv: %v\n", err)
		os.Exit(1)
	}
	defer cur.Close()

	// 2) Connect using shared dbconfig
	poolConfig, err := dbconfig.Default().WithEnv().PoolConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "database config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Create the table and insert in file order inside one transaction
	var sum summary
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		var err error
		sum, err = seed(ctx, tx, table, cur)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed rolled back: %v\n", err)
		os.Exit(1)
	}

	// 4) Print summary
	fmt.Printf(
		"Pairs seed complete: %d total, %d inserted, %d skipped\n",
		sum.total, sum.inserted, sum.skipped,
	)
}

// seed creates table if needed and inserts every pair of cur, numbering rows
// from 1 in file order. Rows whose position already exists are skipped.
func seed(ctx context.Context, db execer, table string, cur images.Cursor) (summary, error) {
	var sum summary
	ident := pgx.Identifier{table}.Sanitize()

	if _, err := db.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
          position  INTEGER PRIMARY KEY,
          left_url  TEXT NOT NULL,
          right_url TEXT NOT NULL
        )`, ident)); err != nil {
		return sum, fmt.Errorf("create table: %w", err)
	}

	insert := fmt.Sprintf(`
        INSERT INTO %s (position, left_url, right_url)
        VALUES ($1, $2, $3)
        ON CONFLICT (position) DO NOTHING
    `, ident)

	for {
		pair, err := cur.Next()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("read csv: %w", err)
		}
		sum.total++

		cmdTag, err := db.Exec(ctx, insert, sum.total, pair[0], pair[1])
		if err != nil {
			return sum, fmt.Errorf("insert pair %d: %w", sum.total, err)
		}
		if cmdTag.RowsAffected() == 1 {
			sum.inserted++
		} else {
			sum.skipped++
		}
	}
}
