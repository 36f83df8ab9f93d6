package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"petgroom-gateway/internal/cache"
	"petgroom-gateway/internal/line"
	"petgroom-gateway/internal/models"
	"petgroom-gateway/internal/stats"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// QuotaHandler serves the monthly usage counters and the official LINE
// quota lookup.
type QuotaHandler struct {
	DB       *gorm.DB
	Client   *line.Client
	Tracker  *stats.Tracker
	Cache    cache.QuotaCache
	CacheTTL time.Duration
}

func NewQuotaHandler(db *gorm.DB, client *line.Client, tracker *stats.Tracker, qc cache.QuotaCache, ttl time.Duration) *QuotaHandler {
	return &QuotaHandler{DB: db, Client: client, Tracker: tracker, Cache: qc, CacheTTL: ttl}
}

// shopID accepts the id either as a query parameter (GET) or in a JSON
// body (POST); the dashboard uses both.
func shopID(c *gin.Context) string {
	if id := c.Query("shopId"); id != "" {
		return id
	}
	var req struct {
		ShopID string `json:"shopId"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.ShopID
	}
	return ""
}

func (h *QuotaHandler) loadShop(c *gin.Context) (*models.Shop, bool) {
	id := shopID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shopId is required"})
		return nil, false
	}

	var shop models.Shop
	err := h.DB.WithContext(c.Request.Context()).First(&shop, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shop not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return nil, false
	}
	return &shop, true
}

// GetUsage returns the shop's current-month counters, zero-valued when
// nothing has been sent this month.
func (h *QuotaHandler) GetUsage(c *gin.Context) {
	shop, ok := h.loadShop(c)
	if !ok {
		return
	}

	stat, err := h.Tracker.CurrentMonth(c.Request.Context(), shop.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stat})
}

// GetOfficialQuota fetches the channel quota and its consumption from the
// platform concurrently, derives remaining/percentage, and caches the
// result per shop.
func (h *QuotaHandler) GetOfficialQuota(c *gin.Context) {
	shop, ok := h.loadShop(c)
	if !ok {
		return
	}

	if shop.LineChannelToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Shop has no LINE channel access token configured"})
		return
	}

	ctx := c.Request.Context()

	cached, err := h.Cache.Get(ctx, shop.ID)
	if err != nil {
		log.Printf("Error reading quota cache for shop %s: %v", shop.ID, err)
	}
	if cached != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "quota": cached})
		return
	}

	var (
		quota       *line.Quota
		consumption *line.QuotaConsumption
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quota, err = h.Client.GetQuota(gctx, shop.LineChannelToken)
		return err
	})
	g.Go(func() error {
		var err error
		consumption, err = h.Client.GetQuotaConsumption(gctx, shop.LineChannelToken)
		return err
	})
	if err := g.Wait(); err != nil {
		var apiErr *line.APIError
		if errors.As(err, &apiErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quota", "message": apiErr.Body})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quota", "message": err.Error()})
		return
	}

	result := &cache.OfficialQuota{
		Quota:     quota.Value,
		Used:      consumption.TotalUsage,
		Unlimited: quota.Type != "limited",
	}
	if !result.Unlimited {
		result.Remaining = quota.Value - consumption.TotalUsage
		if quota.Value > 0 {
			result.Percentage = float64(consumption.TotalUsage) / float64(quota.Value) * 100
		}
	}

	if err := h.Cache.Store(ctx, shop.ID, result, h.CacheTTL); err != nil {
		log.Printf("Error caching quota for shop %s: %v", shop.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "quota": result})
}
