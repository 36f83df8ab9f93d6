package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Appointment status values. Completion and cancellation are terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// WalkInPrefix marks customer ids created for walk-in bookings. Walk-in
// customers have no LINE identity and are never a push target.
const WalkInPrefix = "walkin_"

// Shop is a tenant. Channel credentials and the LIFF id are configured by
// the shop owner through the admin UI; this service only reads them.
type Shop struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name              string    `gorm:"type:varchar(255)" json:"name"`
	LineChannelToken  string    `gorm:"type:text" json:"-"`
	LineChannelSecret string    `gorm:"type:text" json:"-"`
	LineBotUserID     string    `gorm:"type:varchar(64);index" json:"line_bot_user_id"`
	LiffID            string    `gorm:"type:varchar(64)" json:"liff_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Shop) TableName() string {
	return "shops"
}

// Appointment belongs to exactly one shop. Status transitions go through
// the notification dispatcher; see internal/notify.
type Appointment struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ShopID       string     `gorm:"primaryKey;type:varchar(64)" json:"shop_id"`
	UserID       string     `gorm:"type:varchar(64);index" json:"user_id"`
	PetName      string     `gorm:"type:varchar(255)" json:"pet_name"`
	ServiceType  string     `gorm:"type:varchar(255)" json:"service_type"`
	Date         string     `gorm:"type:varchar(20)" json:"date"`
	Time         string     `gorm:"type:varchar(20)" json:"time"`
	Status       string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CancelReason string     `gorm:"type:text" json:"cancel_reason"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// BeforeCreate assigns a UUID when the appointment is created without an
// explicit id (server-side creations; the admin UI supplies its own).
func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ShopUser is a customer's LINE membership within one shop. The same LINE
// user id can appear under multiple shops. Created on follow, marked
// blocked on unfollow, never deleted.
type ShopUser struct {
	ShopID      string    `gorm:"primaryKey;type:varchar(64)" json:"shop_id"`
	LineUserID  string    `gorm:"primaryKey;type:varchar(64)" json:"line_user_id"`
	DisplayName string    `gorm:"type:varchar(255)" json:"display_name"`
	PictureURL  string    `gorm:"type:text" json:"picture_url"`
	Status      string    `gorm:"type:varchar(20);default:'active'" json:"status"`
	FollowedAt  time.Time `json:"followed_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ShopUser) TableName() string {
	return "shop_users"
}

// Follow status values for ShopUser.
const (
	UserActive  = "active"
	UserBlocked = "blocked"
)

// AutoReplyRule is a tenant-configured keyword rule. Rules are evaluated in
// stored order (sort_order, then id) and the first match wins.
type AutoReplyRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ShopID    string    `gorm:"type:varchar(64);index;not null" json:"shop_id"`
	Keyword   string    `gorm:"type:varchar(255);not null" json:"keyword"`
	Reply     string    `gorm:"type:text;not null" json:"reply"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AutoReplyRule) TableName() string {
	return "auto_reply_rules"
}

// MessageStat is the per-shop, per-calendar-month usage counter row.
// Counters are append-only; the row is created lazily on first increment.
type MessageStat struct {
	ShopID                   string    `gorm:"primaryKey;type:varchar(64)" json:"shop_id"`
	Month                    string    `gorm:"primaryKey;type:varchar(7)" json:"month"` // yyyy-mm
	TotalSent                int       `gorm:"default:0" json:"total_sent"`
	AppointmentNotifications int       `gorm:"default:0" json:"appointment_notifications"`
	CompletionNotifications  int       `gorm:"default:0" json:"completion_notifications"`
	ReminderNotifications    int       `gorm:"default:0" json:"reminder_notifications"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageStat) TableName() string {
	return "message_stats"
}

// IsWalkIn reports whether the appointment belongs to a walk-in customer
// with no LINE identity.
func (a *Appointment) IsWalkIn() bool {
	return len(a.UserID) >= len(WalkInPrefix) && a.UserID[:len(WalkInPrefix)] == WalkInPrefix
}
