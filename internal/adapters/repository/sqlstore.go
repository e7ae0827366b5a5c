package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/pkg/logger"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID          int64     `bun:"id,pk"`
	RatingMu    float64   `bun:"rating_mu,notnull,default:25.0"`
	RatingSigma float64   `bun:"rating_sigma,notnull,default:8.333"`
	LastPlayed  time.Time `bun:"last_played,type:date,notnull"`
}

func toRow(r model.PlayerRating) playerRow {
	return playerRow{
		ID:          r.PlayerID,
		RatingMu:    r.Mu,
		RatingSigma: r.Sigma,
		LastPlayed:  model.Day(r.LastActive),
	}
}

func (r playerRow) toModel() model.PlayerRating {
	return model.PlayerRating{
		PlayerID:   r.ID,
		Mu:         r.RatingMu,
		Sigma:      r.RatingSigma,
		LastActive: model.Day(r.LastPlayed),
	}
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID         string    `bun:"id,pk"`
	ChannelID  string    `bun:"channel_id,notnull"`
	AuthorID   string    `bun:"author_id,notnull"`
	AuthorName string    `bun:"author_name,notnull"`
	Content    string    `bun:"content,notnull"`
	PostedAt   time.Time `bun:"posted_at,notnull"`
}

// SQLStore implements Store and Journal on top of bun.
type SQLStore struct {
	db     *bun.DB
	logger logger.Logger
}

var (
	_ Store   = (*SQLStore)(nil)
	_ Journal = (*SQLStore)(nil)
)

// Open connects to the database named by driver and dsn and creates the
// tables when missing.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	db, err := openDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db, logger: logger.Get().Named("repository")}
	for _, opt := range opts {
		opt(s)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "rating store ready", logger.String("driver", driver))
	return s, nil
}

func openDB(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		// one connection: SQLite has a single writer and ":memory:" is per connection
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case DriverPgx:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, m := range []any{(*playerRow)(nil), (*messageRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrate, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]model.PlayerRating, error) {
	return listPlayers(ctx, s.db)
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	n, err := s.db.NewSelect().Model((*playerRow)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

// WithTx implements Store.
func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, sqlTx{idb: tx})
	})
}

// Reset implements Store. The journal is kept.
func (s *SQLStore) Reset(ctx context.Context) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDropTable().Model((*playerRow)(nil)).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop players: %w", err)
		}
		if _, err := tx.NewCreateTable().Model((*playerRow)(nil)).Exec(ctx); err != nil {
			return fmt.Errorf("create players: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "rating table reset")
	return nil
}

// Append implements Journal.
func (s *SQLStore) Append(ctx context.Context, msg model.Message) (bool, error) {
	return appendMessage(ctx, s.db, msg)
}

// Has implements Journal.
func (s *SQLStore) Has(ctx context.Context, id string) (bool, error) {
	return hasMessage(ctx, s.db, id)
}

func appendMessage(ctx context.Context, idb bun.IDB, msg model.Message) (bool, error) {
	row := messageRow{
		ID:         msg.ID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Content:    msg.Content,
		PostedAt:   msg.PostedAt.UTC(),
	}
	res, err := idb.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append message %s: %w", msg.ID, err)
	}
	return n > 0, nil
}

func hasMessage(ctx context.Context, idb bun.IDB, id string) (bool, error) {
	ok, err := idb.NewSelect().Model((*messageRow)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("lookup message %s: %w", id, err)
	}
	return ok, nil
}

// Messages implements Journal.
func (s *SQLStore) Messages(ctx context.Context) ([]model.Message, error) {
	var rows []messageRow
	if err := s.db.NewSelect().Model(&rows).Order("posted_at ASC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, len(rows))
	for i, r := range rows {
		out[i] = model.Message{
			ID:         r.ID,
			ChannelID:  r.ChannelID,
			AuthorID:   r.AuthorID,
			AuthorName: r.AuthorName,
			Content:    r.Content,
			PostedAt:   r.PostedAt.UTC(),
		}
	}
	return out, nil
}

type sqlTx struct {
	idb bun.IDB
}

func (t sqlTx) List(ctx context.Context) ([]model.PlayerRating, error) {
	return listPlayers(ctx, t.idb)
}

func (t sqlTx) Append(ctx context.Context, msg model.Message) (bool, error) {
	return appendMessage(ctx, t.idb, msg)
}

func (t sqlTx) Has(ctx context.Context, id string) (bool, error) {
	return hasMessage(ctx, t.idb, id)
}

func (t sqlTx) Insert(ctx context.Context, ratings ...model.PlayerRating) error {
	if len(ratings) == 0 {
		return nil
	}
	rows := make([]playerRow, len(ratings))
	for i, r := range ratings {
		rows[i] = toRow(r)
	}
	if _, err := t.idb.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return fmt.Errorf("insert players: %w", err)
	}
	return nil
}

func (t sqlTx) Update(ctx context.Context, ratings ...model.PlayerRating) error {
	for _, r := range ratings {
		row := toRow(r)
		res, err := t.idb.NewUpdate().
			Model(&row).
			Column("rating_mu", "rating_sigma", "last_played").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update player %d: %w", r.PlayerID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update player %d: %w", r.PlayerID, ErrNotFound)
		}
	}
	return nil
}

func listPlayers(ctx context.Context, idb bun.IDB) ([]model.PlayerRating, error) {
	var rows []playerRow
	if err := idb.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	out := make([]model.PlayerRating, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
