package quote

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

var ErrDatabase = errors.New("quote-database-error")

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Random(ctx context.Context) (Quote, error) {
	var q Quote
	row := p.pool.QueryRow(ctx, "SELECT content, author FROM quotes ORDER BY random() LIMIT 1")
	if err := row.Scan(&q.Content, &q.Author); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Quote{}, ErrNoQuotes
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Quote{}, err
		default:
			return Quote{}, fmt.Errorf("%w: %w", ErrDatabase, err)
		}
	}
	return Normalize(q)
}

func (p *Postgres) Add(ctx context.Context, q Quote) error {
	nq, err := Normalize(q)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "INSERT INTO quotes(content, author) VALUES($1, $2)", nq.Content, nq.Author); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate applies the embedded schema and seed migrations.
func Migrate(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}
	log.Info().Msg("quote migrations applied")
	return nil
}
