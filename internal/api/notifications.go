package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"petgroom-gateway/internal/line"
	"petgroom-gateway/internal/models"
	"petgroom-gateway/internal/notify"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NotificationHandler exposes the admin-triggered notification endpoints:
// mark-complete, completion share, progress report, decline, and the
// appointment status transition that fires confirm/cancel notices.
type NotificationHandler struct {
	DB         *gorm.DB
	Dispatcher *notify.Dispatcher
}

func NewNotificationHandler(db *gorm.DB, dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{DB: db, Dispatcher: dispatcher}
}

type notificationRequest struct {
	ShopID        string `json:"shopId"`
	AppointmentID string `json:"appointmentId"`
	ImageURL      string `json:"imageUrl"`
	Message       string `json:"message"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
}

// loadShopAppointment resolves shopId+appointmentId or writes the 4xx
// response and returns ok=false.
func (h *NotificationHandler) loadShopAppointment(c *gin.Context, req *notificationRequest) (*models.Shop, *models.Appointment, bool) {
	if req.ShopID == "" || req.AppointmentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shopId and appointmentId are required"})
		return nil, nil, false
	}

	var shop models.Shop
	err := h.DB.WithContext(c.Request.Context()).First(&shop, "id = ?", req.ShopID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Shop not found"})
		return nil, nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return nil, nil, false
	}

	var appt models.Appointment
	err = h.DB.WithContext(c.Request.Context()).
		Where("shop_id = ? AND id = ?", req.ShopID, req.AppointmentID).
		First(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Appointment not found"})
		return nil, nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		return nil, nil, false
	}

	return &shop, &appt, true
}

// writeDeliveryError maps a failed outbound call to a response: 400
// when no credential was configured (nothing was attempted), 500 with the
// platform body otherwise.
func writeDeliveryError(c *gin.Context, err error) {
	if errors.Is(err, notify.ErrNoCredential) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Shop has no LINE channel access token configured"})
		return
	}

	var apiErr *line.APIError
	if errors.As(err, &apiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notification", "message": apiErr.Body})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notification", "message": err.Error()})
}

// completable rejects appointments that are not eligible for the
// completion flow. Only a confirmed appointment may move to completed;
// an already-completed one may be re-notified (the share resend path),
// and cancelled is terminal.
func completable(c *gin.Context, appt *models.Appointment) bool {
	if appt.Status != models.StatusConfirmed && appt.Status != models.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only confirmed appointments can be completed"})
		return false
	}
	return true
}

// SendCompletion handles POST /api/notifications/complete. The completion
// card is pushed first; status only becomes completed after a successful
// send.
func (h *NotificationHandler) SendCompletion(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shop, appt, ok := h.loadShopAppointment(c, &req)
	if !ok {
		return
	}
	if !completable(c, appt) {
		return
	}

	if err := h.Dispatcher.MarkComplete(c.Request.Context(), shop, appt, "", ""); err != nil {
		writeDeliveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendCompletionShare handles POST /api/notifications/complete/share —
// the rich completion card with optional photo and groomer note.
func (h *NotificationHandler) SendCompletionShare(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shop, appt, ok := h.loadShopAppointment(c, &req)
	if !ok {
		return
	}
	if !completable(c, appt) {
		return
	}

	if err := h.Dispatcher.MarkComplete(c.Request.Context(), shop, appt, req.ImageURL, req.Message); err != nil {
		writeDeliveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendProgressReport handles POST /api/notifications/progress.
func (h *NotificationHandler) SendProgressReport(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shop, appt, ok := h.loadShopAppointment(c, &req)
	if !ok {
		return
	}

	if err := h.Dispatcher.SendProgressReport(c.Request.Context(), shop, appt, req.ImageURL, req.Message); err != nil {
		writeDeliveryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Decline handles POST /api/appointments/decline. The reason is mandatory;
// the cancellation commits before the notification attempt, and a failed
// send is reported as a warning inside a 200.
func (h *NotificationHandler) Decline(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Reason) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	shop, appt, ok := h.loadShopAppointment(c, &req)
	if !ok {
		return
	}

	if appt.Status == models.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Appointment is already completed"})
		return
	}

	deliveryErr, commitErr := h.Dispatcher.Decline(c.Request.Context(), shop, appt, req.Reason)
	if commitErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decline appointment"})
		return
	}

	if deliveryErr != nil {
		log.Printf("Decline committed for appointment %s but notification failed: %v", appt.ID, deliveryErr)
		c.JSON(http.StatusOK, gin.H{"success": true, "warning": "Appointment declined but notification could not be delivered"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateStatus handles POST /api/appointments/status. It enforces the
// forward-only state machine (pending→confirmed, pending|confirmed→
// cancelled) and fires the matching notification after the commit. A
// failed notification does not undo the transition.
func (h *NotificationHandler) UpdateStatus(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Status != models.StatusConfirmed && req.Status != models.StatusCancelled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be confirmed or cancelled"})
		return
	}

	shop, appt, ok := h.loadShopAppointment(c, &req)
	if !ok {
		return
	}

	valid := (req.Status == models.StatusConfirmed && appt.Status == models.StatusPending) ||
		(req.Status == models.StatusCancelled &&
			(appt.Status == models.StatusPending || appt.Status == models.StatusConfirmed))
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status transition from " + appt.Status + " to " + req.Status})
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Model(&models.Appointment{}).
		Where("shop_id = ? AND id = ?", shop.ID, appt.ID).
		Update("status", req.Status).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update appointment"})
		return
	}
	appt.Status = req.Status

	var notifyErr error
	if req.Status == models.StatusConfirmed {
		notifyErr = h.Dispatcher.SendConfirmation(c.Request.Context(), shop, appt)
	} else {
		notifyErr = h.Dispatcher.SendCancellation(c.Request.Context(), shop, appt)
	}
	if notifyErr != nil {
		log.Printf("Status of appointment %s updated to %s but notification failed: %v", appt.ID, req.Status, notifyErr)
		c.JSON(http.StatusOK, gin.H{"success": true, "warning": "Status updated but notification could not be delivered"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
