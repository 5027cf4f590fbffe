// Package sqlite is a gorm-backed BookingStore for single-node deployments.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qsmart/booking-service/internal/models"
	"qsmart/booking-service/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// bookingRecord mirrors the bookings table. The composite unique index is the
// slot guard.
type bookingRecord struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	CustomerID    string    `gorm:"not null;index"`
	CustomerName  string    `gorm:"not null;default:''"`
	CustomerEmail string    `gorm:"not null;default:''"`
	Branch        string    `gorm:"not null;uniqueIndex:bookings_slot_service_unique,priority:1;index:bookings_day_status_idx,priority:1"`
	BookingDate   string    `gorm:"not null;uniqueIndex:bookings_slot_service_unique,priority:2;index:bookings_day_status_idx,priority:2"`
	BookingTime   string    `gorm:"not null;uniqueIndex:bookings_slot_service_unique,priority:3"`
	Service       string    `gorm:"not null;uniqueIndex:bookings_slot_service_unique,priority:4"`
	Status        string    `gorm:"type:varchar(32);not null;index:bookings_day_status_idx,priority:3"`
	StaffID       *string   `gorm:"type:text"`
	Notes         *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (bookingRecord) TableName() string { return "bookings" }

func (r bookingRecord) toModel() models.Booking {
	return models.Booking{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		Service:       r.Service,
		Branch:        r.Branch,
		Date:          r.BookingDate,
		Time:          r.BookingTime,
		Status:        r.Status,
		StaffID:       r.StaffID,
		Notes:         r.Notes,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromModel(b models.Booking) bookingRecord {
	return bookingRecord{
		CustomerID:    b.CustomerID,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		Service:       b.Service,
		Branch:        b.Branch,
		BookingDate:   b.Date,
		BookingTime:   b.Time,
		Status:        b.Status,
		StaffID:       b.StaffID,
		Notes:         b.Notes,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

type reviewRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	BookingID int64     `gorm:"not null;uniqueIndex:reviews_booking_unique"`
	Rating    int       `gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Feedback  *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
}

func (reviewRecord) TableName() string { return "reviews" }

func (r reviewRecord) toModel() models.Review {
	return models.Review{
		ID:        r.ID,
		BookingID: r.BookingID,
		Rating:    r.Rating,
		Feedback:  r.Feedback,
		CreatedAt: r.CreatedAt,
	}
}

type Store struct {
	db *gorm.DB
}

// Open opens path with a single connection, since SQLite allows one writer,
// and migrates the bookings and reviews tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&bookingRecord{}, &reviewRecord{}); err != nil {
		return nil, fmt.Errorf("migrate bookings: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) InsertBooking(ctx context.Context, booking models.Booking) (models.Booking, error) {
	rec := fromModel(booking)
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return models.Booking{}, store.ErrSlotTaken
		}
		return models.Booking{}, err
	}
	return rec.toModel(), nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	return getBooking(s.db.WithContext(ctx), id)
}

func getBooking(db *gorm.DB, id int64) (models.Booking, error) {
	var rec bookingRecord
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Booking{}, store.ErrBookingNotFound
		}
		return models.Booking{}, err
	}
	return rec.toModel(), nil
}

func (s *Store) ListDay(ctx context.Context, branch, date string) ([]models.Booking, error) {
	var recs []bookingRecord
	if err := s.db.WithContext(ctx).
		Where("branch = ? AND booking_date = ?", branch, date).
		Order("id ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return toModels(recs), nil
}

func (s *Store) ListBookings(ctx context.Context, filter store.ListFilter) ([]models.Booking, int, error) {
	q := s.db.WithContext(ctx).Model(&bookingRecord{})
	if filter.Branch != "" {
		q = q.Where("branch = ?", filter.Branch)
	}
	if filter.Date != "" {
		q = q.Where("booking_date = ?", filter.Date)
	}
	if filter.Service != "" {
		q = q.Where("service = ?", filter.Service)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Descending {
		q = q.Order("booking_date DESC, booking_time DESC, id DESC")
	} else {
		q = q.Order("booking_date ASC, booking_time ASC, id ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	} else if filter.Offset > 0 {
		q = q.Limit(-1).Offset(filter.Offset)
	}

	var recs []bookingRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	return toModels(recs), int(total), nil
}

func (s *Store) UpdateStatus(ctx context.Context, update store.StatusUpdate) (models.Booking, error) {
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	changes := map[string]any{
		"status":     update.To,
		"updated_at": updatedAt,
	}
	if update.StaffID != "" {
		changes["staff_id"] = update.StaffID
	}
	if update.Notes != nil {
		changes["notes"] = *update.Notes
	}

	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&bookingRecord{}).
			Where("id = ? AND status = ?", update.ID, update.From).
			Updates(changes)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err := getBooking(tx, update.ID); err != nil {
				return err
			}
			return store.ErrStatusConflict
		}
		var err error
		booking, err = getBooking(tx, update.ID)
		return err
	})
	if err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) ExpirePending(ctx context.Context, input store.ExpireInput) ([]models.Booking, error) {
	updatedAt := input.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var expired []bookingRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ?", models.StatusPending).
			Where("booking_date < ? OR (booking_date = ? AND booking_time < ?)", input.Today, input.Today, input.Cutoff).
			Order("id ASC").
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]int64, 0, len(expired))
		for i := range expired {
			ids = append(ids, expired[i].ID)
			expired[i].Status = models.StatusMissed
			expired[i].UpdatedAt = updatedAt
		}
		return tx.Model(&bookingRecord{}).
			Where("id IN ? AND status = ?", ids, models.StatusPending).
			Updates(map[string]any{"status": models.StatusMissed, "updated_at": updatedAt}).Error
	})
	if err != nil {
		return nil, err
	}
	return toModels(expired), nil
}

func (s *Store) DeleteBooking(ctx context.Context, id int64) (models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		booking, err = getBooking(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&reviewRecord{}, "booking_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&bookingRecord{}, "id = ?", id).Error
	})
	if err != nil {
		return models.Booking{}, err
	}
	return booking, nil
}

func (s *Store) InsertReview(ctx context.Context, review models.Review) (models.Review, error) {
	rec := reviewRecord{
		BookingID: review.BookingID,
		Rating:    review.Rating,
		Feedback:  review.Feedback,
		CreatedAt: review.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getBooking(tx, review.BookingID); err != nil {
			return err
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return store.ErrReviewExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Review{}, err
	}
	return rec.toModel(), nil
}

func (s *Store) GetReview(ctx context.Context, bookingID int64) (models.Review, error) {
	var rec reviewRecord
	if err := s.db.WithContext(ctx).First(&rec, "booking_id = ?", bookingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Review{}, store.ErrReviewNotFound
		}
		return models.Review{}, err
	}
	return rec.toModel(), nil
}

func toModels(recs []bookingRecord) []models.Booking {
	out := make([]models.Booking, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
