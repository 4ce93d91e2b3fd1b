// Package pg persists orders in Postgres. The optimistic-concurrency
// contract of order.Store maps onto a conditional UPDATE guarded by the
// stored version: the status change and the version increment commit in
// one transaction together with the audit-trail row.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"

	"finnbourse.org/internal/order"
	"finnbourse.org/internal/policy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements order.Store on Postgres.
type Store struct {
	db *sqlx.DB
}

var _ order.Store = (*Store)(nil)

// Open connects to Postgres via the pgx stdlib driver and applies pending
// migrations.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection without running migrations (tests).
func NewWithDB(db *sqlx.DB) *Store { return &Store{db: db} }

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src := migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
	if _, err := migrate.Exec(db, "postgres", src, migrate.Up); err != nil {
		return fmt.Errorf("pg: apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db.DB }

type orderRow struct {
	ID             string       `db:"id"`
	SecurityID     string       `db:"security_id"`
	ClientID       string       `db:"client_id"`
	Side           string       `db:"side"`
	MarketType     string       `db:"market_type"`
	Quantity       int64        `db:"quantity"`
	Price          int64        `db:"price"`
	PriceCondition string       `db:"price_condition"`
	TimeCondition  string       `db:"time_condition"`
	ValidUntil     sql.NullTime `db:"valid_until"`
	Status         string       `db:"status"`
	CreatedBy      string       `db:"created_by"`
	CreatedByRole  string       `db:"created_by_role"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	Version        int64        `db:"version"`
}

type eventRow struct {
	ID         string    `db:"id"`
	OrderID    string    `db:"order_id"`
	FromStatus string    `db:"from_status"`
	ToStatus   string    `db:"to_status"`
	ActorID    string    `db:"actor_id"`
	ActorRole  string    `db:"actor_role"`
	Reason     string    `db:"reason"`
	OccurredAt time.Time `db:"occurred_at"`
}

const insertOrderSQL = `
insert into orders (
    id, security_id, client_id, side, market_type, quantity, price,
    price_condition, time_condition, valid_until, status,
    created_by, created_by_role, created_at, updated_at, version
) values (
    :id, :security_id, :client_id, :side, :market_type, :quantity, :price,
    :price_condition, :time_condition, :valid_until, :status,
    :created_by, :created_by_role, :created_at, :updated_at, :version
)`

func (s *Store) Insert(ctx context.Context, o *order.Order) error {
	_, err := s.db.NamedExecContext(ctx, insertOrderSQL, toRow(*o))
	if err != nil {
		return fmt.Errorf("pg: insert order: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (order.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `select * from orders where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("pg: get order: %w", err)
	}

	var events []eventRow
	if err := s.db.SelectContext(ctx, &events,
		`select * from order_events where order_id = $1 order by occurred_at, id`, id); err != nil {
		return order.Order{}, fmt.Errorf("pg: get order trail: %w", err)
	}
	return fromRow(row, events), nil
}

func (s *Store) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	query := `select * from orders where 1=1`
	args := map[string]any{"limit": f.Limit}
	if f.Status != "" {
		query += ` and status = :status`
		args["status"] = string(f.Status)
	}
	if f.ClientID != "" {
		query += ` and client_id = :client_id`
		args["client_id"] = f.ClientID
	}
	query += ` order by created_at desc limit :limit`

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("pg: list orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		var row orderRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("pg: scan order: %w", err)
		}
		out = append(out, fromRow(row, nil))
	}
	return out, rows.Err()
}

func (s *Store) ApplyTransition(ctx context.Context, id string, expectedVersion uint64, change order.StatusChange) (order.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return order.Order{}, fmt.Errorf("pg: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update orders
		   set status = $1, version = version + 1, updated_at = $2
		 where id = $3 and version = $4 and status = $5`,
		string(change.To), change.At, id, int64(expectedVersion), string(change.From))
	if err != nil {
		return order.Order{}, fmt.Errorf("pg: apply transition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return order.Order{}, fmt.Errorf("pg: apply transition: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `select exists (select 1 from orders where id = $1)`, id); err != nil {
			return order.Order{}, fmt.Errorf("pg: apply transition: %w", err)
		}
		if !exists {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("%w: version %d no longer current", order.ErrStaleVersion, expectedVersion)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into order_events (id, order_id, from_status, to_status, actor_id, actor_role, reason, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		change.ID, id, string(change.From), string(change.To),
		change.ActorID, string(change.Role), change.Reason, change.At); err != nil {
		return order.Order{}, fmt.Errorf("pg: record transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return order.Order{}, fmt.Errorf("pg: commit transition: %w", err)
	}
	return s.Get(ctx, id)
}

func toRow(o order.Order) orderRow {
	row := orderRow{
		ID:             o.ID,
		SecurityID:     o.SecurityID,
		ClientID:       o.ClientID,
		Side:           string(o.Side),
		MarketType:     string(o.MarketType),
		Quantity:       o.Quantity,
		Price:          o.Price,
		PriceCondition: string(o.PriceCondition),
		TimeCondition:  string(o.TimeCondition),
		Status:         string(o.Status),
		CreatedBy:      o.CreatedBy,
		CreatedByRole:  string(o.CreatedByRole),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Version:        int64(o.Version),
	}
	if !o.ValidUntil.IsZero() {
		row.ValidUntil = sql.NullTime{Time: o.ValidUntil, Valid: true}
	}
	return row
}

func fromRow(row orderRow, events []eventRow) order.Order {
	o := order.Order{
		ID:             row.ID,
		SecurityID:     row.SecurityID,
		ClientID:       row.ClientID,
		Side:           order.Side(row.Side),
		MarketType:     order.MarketType(row.MarketType),
		Quantity:       row.Quantity,
		Price:          row.Price,
		PriceCondition: order.PriceCondition(row.PriceCondition),
		TimeCondition:  order.TimeCondition(row.TimeCondition),
		Status:         order.Status(row.Status),
		CreatedBy:      row.CreatedBy,
		CreatedByRole:  policy.Role(row.CreatedByRole),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
		Version:        uint64(row.Version),
	}
	if row.ValidUntil.Valid {
		o.ValidUntil = row.ValidUntil.Time
	}
	for _, ev := range events {
		o.Trail = append(o.Trail, order.StatusChange{
			ID:      ev.ID,
			From:    order.Status(ev.FromStatus),
			To:      order.Status(ev.ToStatus),
			ActorID: ev.ActorID,
			Role:    policy.Role(ev.ActorRole),
			Reason:  ev.Reason,
			At:      ev.OccurredAt,
		})
	}
	return o
}
