package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"petgroom-gateway/internal/line"
	"petgroom-gateway/internal/models"
	"petgroom-gateway/internal/stats"

	"gorm.io/gorm"
)

// ErrNoCredential is returned before any external call when the shop has no
// channel access token configured.
var ErrNoCredential = errors.New("shop has no LINE channel access token configured")

// Dispatcher performs outbound pushes and owns the coupling between
// delivery outcome and appointment state.
//
// Ordering is deliberately asymmetric: completion sends first and commits
// state only on success (no appointment is marked completed without
// evidence the customer was notified), while decline commits state
// unconditionally before attempting the send (an admin decline must always
// stick). Do not unify the two.
type Dispatcher struct {
	db      *gorm.DB
	client  *line.Client
	tracker *stats.Tracker
}

func NewDispatcher(db *gorm.DB, client *line.Client, tracker *stats.Tracker) *Dispatcher {
	return &Dispatcher{db: db, client: client, tracker: tracker}
}

// push guards the walk-in invariant and the credential precondition, then
// performs the outbound call and records usage on success.
func (d *Dispatcher) push(ctx context.Context, shop *models.Shop, appt *models.Appointment, msg line.Message, category stats.Category) error {
	if appt.IsWalkIn() {
		log.Printf("Skipping notification for walk-in customer %s (shop %s)", appt.UserID, shop.ID)
		return nil
	}
	if shop.LineChannelToken == "" {
		return ErrNoCredential
	}

	if err := d.client.Push(ctx, shop.LineChannelToken, appt.UserID, []line.Message{msg}); err != nil {
		log.Printf("Error pushing %s notification to %s (shop %s): %v", category, appt.UserID, shop.ID, err)
		return err
	}

	d.tracker.Record(ctx, shop.ID, category)
	return nil
}

// SendConfirmation notifies the customer that a pending appointment was
// confirmed. State has already moved; delivery failure surfaces to the
// caller but does not roll anything back.
func (d *Dispatcher) SendConfirmation(ctx context.Context, shop *models.Shop, appt *models.Appointment) error {
	return d.push(ctx, shop, appt, ConfirmationCard(NewCardInput(shop, appt)), stats.CategoryAppointment)
}

// SendCancellation notifies the customer that a confirmed appointment was
// cancelled.
func (d *Dispatcher) SendCancellation(ctx context.Context, shop *models.Shop, appt *models.Appointment) error {
	return d.push(ctx, shop, appt, CancellationCard(NewCardInput(shop, appt)), stats.CategoryAppointment)
}

// Decline commits the cancellation with the given reason first, then
// attempts the decline notification. The returned deliveryErr is advisory:
// the state change has already happened and callers downgrade the failure
// to a warning. The reason must be validated non-blank by the caller.
func (d *Dispatcher) Decline(ctx context.Context, shop *models.Shop, appt *models.Appointment, reason string) (deliveryErr, commitErr error) {
	commitErr = d.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("shop_id = ? AND id = ?", shop.ID, appt.ID).
		Updates(map[string]interface{}{
			"status":        models.StatusCancelled,
			"cancel_reason": reason,
		}).Error
	if commitErr != nil {
		return nil, commitErr
	}
	appt.Status = models.StatusCancelled
	appt.CancelReason = reason

	in := NewCardInput(shop, appt)
	in.Reason = reason
	deliveryErr = d.push(ctx, shop, appt, DeclineCard(in), stats.CategoryAppointment)
	return deliveryErr, nil
}

// MarkComplete sends the completion notification and, only when delivery
// succeeds, commits status=completed with the completion timestamp. A
// failed send leaves the appointment untouched. Callers must have checked
// the appointment is confirmed (or already completed, for a resend).
// imageURL and message are optional and turn the card into the rich
// completion-share variant.
//
// Walk-in appointments have nobody to notify; their transition commits
// directly with no send and no counter.
func (d *Dispatcher) MarkComplete(ctx context.Context, shop *models.Shop, appt *models.Appointment, imageURL, message string) error {
	alreadyCompleted := appt.Status == models.StatusCompleted

	if !appt.IsWalkIn() {
		in := NewCardInput(shop, appt)
		in.ImageURL = imageURL
		in.Message = message
		if err := d.push(ctx, shop, appt, CompletionCard(in), stats.CategoryCompletion); err != nil {
			return err
		}
	}

	// Re-sending a completion share for an already-completed appointment
	// must not rewrite the timestamp.
	if alreadyCompleted {
		return nil
	}

	now := time.Now()
	err := d.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("shop_id = ? AND id = ?", shop.ID, appt.ID).
		Updates(map[string]interface{}{
			"status":       models.StatusCompleted,
			"completed_at": now,
		}).Error
	if err != nil {
		return err
	}
	appt.Status = models.StatusCompleted
	appt.CompletedAt = &now
	return nil
}

// SendProgressReport pushes a mid-service update. No state change.
func (d *Dispatcher) SendProgressReport(ctx context.Context, shop *models.Shop, appt *models.Appointment, imageURL, message string) error {
	in := NewCardInput(shop, appt)
	in.ImageURL = imageURL
	in.Message = message
	return d.push(ctx, shop, appt, ProgressCard(in), stats.CategoryReminder)
}
