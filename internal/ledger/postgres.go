package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/hospital-voice-booking/internal/booking"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps bookings in the bookings table, whose unique constraint
// on (kind, subject, booking_date, time_interval) arbitrates races.
type PostgresStore struct {
	pool rowQuerier
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Mover = (*PostgresStore)(nil)
)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("ledger: exec required")
	}
	return &PostgresStore{pool: exec}
}

const insertBookingSQL = `
	INSERT INTO bookings (id, kind, category, subject, booking_date, time_interval,
		customer_name, customer_contact, home_service, created_at)
	VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10)
	ON CONFLICT (kind, subject, booking_date, time_interval) DO NOTHING
`

const selectBookingColumns = `
	SELECT id, kind, category, subject, to_char(booking_date, 'YYYY-MM-DD'), time_interval,
		customer_name, customer_contact, home_service, created_at
	FROM bookings
`

func insertBooking(ctx context.Context, db execer, b booking.Booking) error {
	ct, err := db.Exec(ctx, insertBookingSQL,
		b.ID, string(b.Kind), b.Category, b.Subject, b.Date, b.Interval,
		b.CustomerName, b.CustomerContact, b.HomeService, b.CreatedAt)
	if err != nil {
		return booking.LedgerUnavailable("insert booking", err)
	}
	if ct.RowsAffected() == 0 {
		return booking.ConflictError(fmt.Sprintf("%s is already booked on %s at %s", b.Subject, b.Date, b.Interval))
	}
	return nil
}

// Insert adds b, returning a conflict error when the slot is taken.
func (s *PostgresStore) Insert(ctx context.Context, b booking.Booking) error {
	return insertBooking(ctx, s.pool, b)
}

// Exists checks the slot key.
func (s *PostgresStore) Exists(ctx context.Context, key booking.Key) (bool, error) {
	query := `SELECT 1 FROM bookings WHERE kind = $1 AND subject = $2 AND booking_date = $3::date AND time_interval = $4`
	var exists int
	if err := s.pool.QueryRow(ctx, query, string(key.Kind), key.Subject, key.Date, key.Interval).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, booking.LedgerUnavailable("check booking", err)
	}
	return true, nil
}

// BookedOn lists every booking on date ordered by interval then subject.
func (s *PostgresStore) BookedOn(ctx context.Context, date string) ([]booking.Booking, error) {
	return s.queryBookings(ctx, selectBookingColumns+`WHERE booking_date = $1::date ORDER BY time_interval, subject`, date)
}

// BookedBetween lists bookings dated from..to inclusive in one query.
func (s *PostgresStore) BookedBetween(ctx context.Context, from, to string) ([]booking.Booking, error) {
	return s.queryBookings(ctx, selectBookingColumns+`WHERE booking_date BETWEEN $1::date AND $2::date
		ORDER BY booking_date, time_interval, subject`, from, to)
}

func (s *PostgresStore) queryBookings(ctx context.Context, query string, args ...any) ([]booking.Booking, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, booking.LedgerUnavailable("list bookings", err)
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, booking.LedgerUnavailable("scan booking", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, booking.LedgerUnavailable("list bookings", err)
	}
	return out, nil
}

// LatestByContact returns the most recent booking for contact by date and time.
func (s *PostgresStore) LatestByContact(ctx context.Context, kind booking.Kind, contact string) (*booking.Booking, error) {
	row := s.pool.QueryRow(ctx, selectBookingColumns+`WHERE kind = $1 AND customer_contact = $2
		ORDER BY booking_date DESC, time_interval DESC LIMIT 1`, string(kind), contact)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, booking.LedgerUnavailable("latest booking", err)
	}
	return &b, nil
}

// Delete removes a booking by id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return deleteBooking(ctx, s.pool, id)
}

func deleteBooking(ctx context.Context, db execer, id string) error {
	ct, err := db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return booking.LedgerUnavailable("delete booking", err)
	}
	if ct.RowsAffected() == 0 {
		return booking.NotFoundError("booking " + id + " not found")
	}
	return nil
}

// Move inserts next and deletes oldID inside one transaction.
func (s *PostgresStore) Move(ctx context.Context, oldID string, next booking.Booking) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return booking.LedgerUnavailable("begin move", err)
	}
	defer tx.Rollback(ctx)

	if err := insertBooking(ctx, tx, next); err != nil {
		return err
	}
	if err := deleteBooking(ctx, tx, oldID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return booking.LedgerUnavailable("commit move", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (booking.Booking, error) {
	var (
		b         booking.Booking
		kind      string
		home      *bool
		createdAt time.Time
	)
	if err := row.Scan(&b.ID, &kind, &b.Category, &b.Subject, &b.Date, &b.Interval,
		&b.CustomerName, &b.CustomerContact, &home, &createdAt); err != nil {
		return booking.Booking{}, err
	}
	b.Kind = booking.Kind(kind)
	b.HomeService = home
	b.CreatedAt = createdAt
	return b, nil
}
