package webhook

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"petgroom-gateway/internal/autoreply"
	"petgroom-gateway/internal/line"
	intmodels "petgroom-gateway/internal/models"
	"petgroom-gateway/internal/resolver"
	"petgroom-gateway/internal/stats"
	"petgroom-gateway/pkg/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Handler struct {
	DB       *gorm.DB
	Client   *line.Client
	Resolver *resolver.Resolver
	Matcher  *autoreply.Matcher
	Tracker  *stats.Tracker
}

func NewHandler(db *gorm.DB, client *line.Client, res *resolver.Resolver, matcher *autoreply.Matcher, tracker *stats.Tracker) *Handler {
	return &Handler{
		DB:       db,
		Client:   client,
		Resolver: res,
		Matcher:  matcher,
		Tracker:  tracker,
	}
}

// HandleWebhook processes one LINE webhook delivery. The signature is
// verified over the raw body with the destination shop's channel secret
// before any event is touched; a mismatch rejects the whole batch. Events
// are then processed sequentially in array order. Deliveries can arrive
// duplicated or out of order, so every branch tolerates re-processing.
func (h *Handler) HandleWebhook(c *gin.Context) {
	// Garbage input is logged and dropped with a 200: the platform
	// retries non-2xx responses and a malformed delivery will never
	// become parseable.
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		c.JSON(http.StatusOK, gin.H{"message": "OK"})
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("Error parsing webhook payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"message": "OK"})
		return
	}

	shop, err := h.Resolver.ByDestination(c.Request.Context(), payload.Destination)
	if err != nil && !errors.Is(err, resolver.ErrShopNotFound) {
		log.Printf("Error resolving shop for destination %s: %v", payload.Destination, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return
	}

	signature := c.GetHeader("X-Line-Signature")
	switch {
	case shop == nil:
		// No shop claims this destination; nothing to verify against.
		log.Printf("No shop configured for destination %s, skipping signature check", payload.Destination)
	case shop.LineChannelSecret == "":
		log.Printf("Shop %s has no channel secret configured, skipping signature check", shop.ID)
	default:
		if !line.VerifySignature(body, signature, shop.LineChannelSecret) {
			log.Printf("Invalid webhook signature for shop %s", shop.ID)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
	}

	for i := range payload.Events {
		h.handleEvent(c, shop, &payload.Events[i])
	}

	c.JSON(http.StatusOK, gin.H{"message": "OK"})
}

func (h *Handler) handleEvent(c *gin.Context, shop *intmodels.Shop, event *models.Event) {
	switch event.Type {
	case "follow":
		h.handleFollow(c, shop, event)
	case "unfollow":
		h.handleUnfollow(c, shop, event)
	case "message":
		if event.Message != nil && event.Message.Type == "text" {
			h.handleTextMessage(c, event)
		} else {
			log.Printf("Ignoring non-text message event from %s", event.Source.UserID)
		}
	default:
		log.Printf("Ignoring webhook event type %s", event.Type)
	}
}

// handleFollow creates or revives the customer's membership record. The
// profile fetch is best-effort; a follow without a profile still gets the
// membership row. Re-follows simply flip the row back to active.
func (h *Handler) handleFollow(c *gin.Context, shop *intmodels.Shop, event *models.Event) {
	if shop == nil {
		log.Printf("Follow event from %s has no resolvable shop, skipping", event.Source.UserID)
		return
	}

	user := intmodels.ShopUser{
		ShopID:     shop.ID,
		LineUserID: event.Source.UserID,
		Status:     intmodels.UserActive,
		FollowedAt: time.Unix(0, event.Timestamp*int64(time.Millisecond)),
	}

	if shop.LineChannelToken != "" {
		profile, err := h.Client.GetProfile(c.Request.Context(), shop.LineChannelToken, event.Source.UserID)
		if err != nil {
			log.Printf("Error fetching profile for %s: %v", event.Source.UserID, err)
		} else {
			user.DisplayName = profile.DisplayName
			user.PictureURL = profile.PictureURL
		}
	}

	err := h.DB.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_id"}, {Name: "line_user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":       intmodels.UserActive,
			"display_name": user.DisplayName,
			"picture_url":  user.PictureURL,
			"followed_at":  user.FollowedAt,
		}),
	}).Create(&user).Error
	if err != nil {
		log.Printf("Error saving shop user %s: %v", event.Source.UserID, err)
		return
	}

	log.Printf("User %s followed shop %s", event.Source.UserID, shop.ID)
}

// handleUnfollow marks the membership blocked. The record stays.
func (h *Handler) handleUnfollow(c *gin.Context, shop *intmodels.Shop, event *models.Event) {
	if shop == nil {
		log.Printf("Unfollow event from %s has no resolvable shop, skipping", event.Source.UserID)
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Model(&intmodels.ShopUser{}).
		Where("shop_id = ? AND line_user_id = ?", shop.ID, event.Source.UserID).
		Update("status", intmodels.UserBlocked).Error
	if err != nil {
		log.Printf("Error blocking shop user %s: %v", event.Source.UserID, err)
		return
	}

	log.Printf("User %s unfollowed shop %s", event.Source.UserID, shop.ID)
}

// handleTextMessage runs the auto-reply flow. The shop is resolved by
// scanning appointments for the sender; a user no shop knows is expected
// noise, not an error. No matching rule means silence.
func (h *Handler) handleTextMessage(c *gin.Context, event *models.Event) {
	ctx := c.Request.Context()
	userID := event.Source.UserID

	shop, err := h.Resolver.ByLineUserID(ctx, userID)
	if errors.Is(err, resolver.ErrShopNotFound) {
		log.Printf("No shop mapped for user %s, skipping message", userID)
		return
	}
	if err != nil {
		log.Printf("Error resolving shop for user %s: %v", userID, err)
		return
	}

	rule, err := h.Matcher.Match(ctx, shop.ID, event.Message.Text)
	if err != nil {
		log.Printf("Error matching auto-reply rules for shop %s: %v", shop.ID, err)
		return
	}
	if rule == nil {
		return
	}

	if shop.LineChannelToken == "" {
		log.Printf("Shop %s matched rule %d but has no channel access token", shop.ID, rule.ID)
		return
	}

	err = h.Client.Reply(ctx, shop.LineChannelToken, event.ReplyToken, []line.Message{line.NewTextMessage(rule.Reply)})
	if err != nil {
		log.Printf("Error sending auto-reply for shop %s: %v", shop.ID, err)
		return
	}

	h.Tracker.Record(ctx, shop.ID, stats.CategoryNone)
	log.Printf("Auto-replied to %s with rule %d (shop %s)", userID, rule.ID, shop.ID)
}
