package autoreply

import (
	"context"
	"strings"

	"petgroom-gateway/internal/models"

	"gorm.io/gorm"
)

// Matcher evaluates a shop's keyword rules against an inbound message.
type Matcher struct {
	db *gorm.DB
}

func NewMatcher(db *gorm.DB) *Matcher {
	return &Matcher{db: db}
}

// Match returns the first enabled rule whose keyword is contained in the
// message, comparing case-insensitively. Rules are checked in stored order
// (sort_order, then id); rule order is the tie-break, not keyword length.
// A nil rule with nil error means no rule matched, which is not an error.
func (m *Matcher) Match(ctx context.Context, shopID, messageText string) (*models.AutoReplyRule, error) {
	var rules []models.AutoReplyRule
	err := m.db.WithContext(ctx).
		Where("shop_id = ? AND enabled = ?", shopID, true).
		Order("sort_order ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}

	message := strings.ToLower(messageText)
	for i := range rules {
		keyword := strings.ToLower(rules[i].Keyword)
		if keyword == "" {
			continue
		}
		if strings.Contains(message, keyword) {
			return &rules[i], nil
		}
	}

	return nil, nil
}
