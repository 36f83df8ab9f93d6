package resolver

import (
	"context"
	"errors"

	"petgroom-gateway/internal/models"

	"gorm.io/gorm"
)

// ErrShopNotFound is returned when neither strategy can attribute an
// external identifier to a shop. Callers treat it as a skip, not a failure.
var ErrShopNotFound = errors.New("shop not found")

// Resolver maps opaque LINE identifiers to shops. Nothing in the data
// model links a LINE user id to a shop directly, so resolution by user id
// is a best-effort scan.
type Resolver struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// ByDestination finds the shop whose configured bot user id matches the
// webhook's destination field. Indexed equality lookup.
func (r *Resolver) ByDestination(ctx context.Context, botUserID string) (*models.Shop, error) {
	if botUserID == "" {
		return nil, ErrShopNotFound
	}

	var shop models.Shop
	err := r.db.WithContext(ctx).Where("line_bot_user_id = ?", botUserID).First(&shop).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// ByLineUserID finds the first shop that has ever had an appointment for
// the given LINE user. This walks every shop and probes its appointments,
// O(shops) per call. Acceptable at small tenant counts; a denormalized
// user-to-shop index would remove the scan if it ever becomes a problem.
func (r *Resolver) ByLineUserID(ctx context.Context, userID string) (*models.Shop, error) {
	if userID == "" {
		return nil, ErrShopNotFound
	}

	var shops []models.Shop
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&shops).Error; err != nil {
		return nil, err
	}

	for i := range shops {
		var count int64
		err := r.db.WithContext(ctx).Model(&models.Appointment{}).
			Where("shop_id = ? AND user_id = ?", shops[i].ID, userID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return &shops[i], nil
		}
	}

	return nil, ErrShopNotFound
}
