package stats

import (
	"context"
	"errors"
	"log"
	"time"

	"petgroom-gateway/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Category is the notification bucket a send counts against.
type Category string

const (
	CategoryAppointment Category = "appointment"
	CategoryCompletion  Category = "completion"
	CategoryReminder    Category = "reminder"
	// CategoryNone increments only the monthly total (auto-replies).
	CategoryNone Category = ""
)

// Tracker maintains the per-shop, per-month usage counters. All increments
// go through a single-statement upsert, the only atomicity the store
// guarantees; counters only ever grow.
type Tracker struct {
	db *gorm.DB

	// now is swappable in tests.
	now func() time.Time
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// Increment adds one send to the shop's current-month row, creating it if
// absent, and bumps the category counter when one applies.
func (t *Tracker) Increment(ctx context.Context, shopID string, category Category) error {
	month := t.now().Format("2006-01")

	stat := models.MessageStat{
		ShopID:    shopID,
		Month:     month,
		TotalSent: 1,
	}

	assignments := map[string]interface{}{
		"total_sent": gorm.Expr("message_stats.total_sent + 1"),
		"updated_at": t.now(),
	}

	switch category {
	case CategoryAppointment:
		stat.AppointmentNotifications = 1
		assignments["appointment_notifications"] = gorm.Expr("message_stats.appointment_notifications + 1")
	case CategoryCompletion:
		stat.CompletionNotifications = 1
		assignments["completion_notifications"] = gorm.Expr("message_stats.completion_notifications + 1")
	case CategoryReminder:
		stat.ReminderNotifications = 1
		assignments["reminder_notifications"] = gorm.Expr("message_stats.reminder_notifications + 1")
	}

	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&stat).Error
}

// Record is the fire-and-forget wrapper used after a successful send.
// Stats are observability, not part of the delivery outcome; failures are
// logged and never propagated.
func (t *Tracker) Record(ctx context.Context, shopID string, category Category) {
	if err := t.Increment(ctx, shopID, category); err != nil {
		log.Printf("Error recording message stats for shop %s: %v", shopID, err)
	}
}

// CurrentMonth returns the shop's stats row for the current month, or a
// zero-valued row when nothing has been sent yet.
func (t *Tracker) CurrentMonth(ctx context.Context, shopID string) (*models.MessageStat, error) {
	month := t.now().Format("2006-01")

	var stat models.MessageStat
	err := t.db.WithContext(ctx).
		Where("shop_id = ? AND month = ?", shopID, month).
		First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.MessageStat{ShopID: shopID, Month: month}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}
