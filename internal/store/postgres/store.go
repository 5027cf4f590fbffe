package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const bookingColumns = `booking_id, customer_id, customer_name, customer_email, service, branch,
	to_char(booking_date, 'YYYY-MM-DD'), to_char(booking_time, 'HH24:MI'),
	status, staff_id, notes, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Open builds a pool from dsn and pings it once.
func Open(ctx context.Context, dsn string, options Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if options.MaxConns > 0 {
		cfg.MaxConns = options.MaxConns
	}
	if options.MinConns > 0 {
		cfg.MinConns = options.MinConns
	}
	if options.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = options.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var booking models.Booking
	var staffIDNull sql.NullString
	var notesNull sql.NullString
	if err := row.Scan(
		&booking.ID, &booking.CustomerID, &booking.CustomerName, &booking.CustomerEmail,
		&booking.Service, &booking.Branch, &booking.Date, &booking.Time,
		&booking.Status, &staffIDNull, &notesNull, &booking.CreatedAt, &booking.UpdatedAt,
	); err != nil {
		return models.Booking{}, err
	}
	booking.StaffID = nullStringPtr(staffIDNull)
	booking.Notes = nullStringPtr(notesNull)
	return booking, nil
}

func (s *Store) InsertBooking(ctx context.Context, booking models.Booking) (models.Booking, error) {
	createdAt := booking.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := booking.Status
	if status == "" {
		status = models.StatusPending
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO bookings (
			customer_id, customer_name, customer_email, service, branch,
			booking_date, booking_time, status, staff_id, notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::date,$7::time,$8,$9,$10,$11,$11)
		ON CONFLICT (branch, booking_date, booking_time, service) DO NOTHING
		RETURNING `+bookingColumns,
		booking.CustomerID, booking.CustomerName, booking.CustomerEmail, booking.Service, booking.Branch,
		booking.Date, booking.Time, status, stringPtrValue(booking.StaffID), stringPtrValue(booking.Notes), createdAt)

	inserted, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return models.Booking{}, store.ErrSlotTaken
		}
		return models.Booking{}, err
	}
	return inserted, nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = $1`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Booking{}, store.ErrBookingNotFound
		}
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) ListDay(ctx context.Context, branch, date string) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE branch = $1 AND booking_date = $2::date
		ORDER BY booking_id ASC
	`, branch, date)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) ListBookings(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
	where, args := buildFilter(filter)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY booking_date ASC, booking_time ASC, booking_id ASC"
	if filter.Descending {
		order = " ORDER BY booking_date DESC, booking_time DESC, booking_id DESC"
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings` + where + order
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func buildFilter(filter store.ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(column, cast, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}
	add("branch", "", filter.Branch)
	add("booking_date", "::date", filter.Date)
	add("service", "", filter.Service)
	add("status", "", filter.Status)
	add("customer_id", "", filter.CustomerID)
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *Store) UpdateStatus(ctx context.Context, update store.StatusUpdate) (models.Booking, error) {
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Booking{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
			staff_id = COALESCE($3, staff_id),
			notes = COALESCE($4, notes),
			updated_at = $5
		WHERE booking_id = $1 AND status = $6
		RETURNING `+bookingColumns,
		update.ID, update.To, nullIfEmpty(update.StaffID), stringPtrValue(update.Notes), updatedAt, update.From)

	var booking models.Booking
	booking, err = scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_, exists, stateErr := loadBookingState(ctx, tx, update.ID)
			if stateErr != nil {
				err = stateErr
				return models.Booking{}, err
			}
			if !exists {
				return models.Booking{}, store.ErrBookingNotFound
			}
			return models.Booking{}, store.ErrStatusConflict
		}
		return models.Booking{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

// ExpirePending marks overdue pending bookings missed in one statement. The
// status predicate keeps repeated sweeps from touching the same row twice.
func (s *Store) ExpirePending(ctx context.Context, input store.ExpireInput) ([]models.Booking, error) {
	updatedAt := input.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE bookings
		SET status = 'missed', updated_at = $3
		WHERE status = 'pending'
			AND (booking_date < $1::date OR (booking_date = $1::date AND booking_time < $2::time))
		RETURNING `+bookingColumns,
		input.Today, input.Cutoff, updatedAt)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) DeleteBooking(ctx context.Context, id int64) (models.Booking, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM bookings WHERE booking_id = $1 RETURNING `+bookingColumns, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Booking{}, store.ErrBookingNotFound
		}
		return models.Booking{}, err
	}
	return booking, nil
}

// InsertReview relies on the unique booking_id index; the existence check in
// the same statement keeps an unknown booking apart from a duplicate.
func (s *Store) InsertReview(ctx context.Context, review models.Review) (models.Review, error) {
	createdAt := review.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var feedback sql.NullString
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reviews (booking_id, rating, feedback, created_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM bookings WHERE booking_id = $1)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING review_id, booking_id, rating, feedback, created_at`,
		review.BookingID, review.Rating, stringPtrValue(review.Feedback), createdAt,
	).Scan(&review.ID, &review.BookingID, &review.Rating, &feedback, &review.CreatedAt)
	if err == nil {
		review.Feedback = nullStringPtr(feedback)
		return review, nil
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation:
		return models.Review{}, store.ErrBookingNotFound
	case isUniqueViolation(err):
		return models.Review{}, store.ErrReviewExists
	case !errors.Is(err, pgx.ErrNoRows):
		return models.Review{}, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE booking_id = $1)`, review.BookingID).Scan(&exists); err != nil {
		return models.Review{}, err
	}
	if !exists {
		return models.Review{}, store.ErrBookingNotFound
	}
	return models.Review{}, store.ErrReviewExists
}

func (s *Store) GetReview(ctx context.Context, bookingID int64) (models.Review, error) {
	var review models.Review
	var feedback sql.NullString
	err := s.pool.QueryRow(ctx, `
		SELECT review_id, booking_id, rating, feedback, created_at
		FROM reviews WHERE booking_id = $1`, bookingID,
	).Scan(&review.ID, &review.BookingID, &review.Rating, &feedback, &review.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Review{}, store.ErrReviewNotFound
		}
		return models.Review{}, err
	}
	review.Feedback = nullStringPtr(feedback)
	return review, nil
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
	defer rows.Close()
	items := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func loadBookingState(ctx context.Context, tx pgx.Tx, id int64) (string, bool, error) {
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE booking_id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func stringPtrValue(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
