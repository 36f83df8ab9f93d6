package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"petgroom-gateway/internal/cache"
	"petgroom-gateway/internal/database"
	"petgroom-gateway/internal/line"
	"petgroom-gateway/internal/models"
	"petgroom-gateway/internal/notify"
	"petgroom-gateway/internal/stats"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakePlatform is a stand-in LINE API whose push endpoint can be switched
// into failure mode.
type fakePlatform struct {
	mu        sync.Mutex
	failPush  bool
	pushCalls int
	pushBody  string
}

func (f *fakePlatform) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/v2/bot/message/push":
			f.pushCalls++
			b, _ := io.ReadAll(r.Body)
			f.pushBody = string(b)
			if f.failPush {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"message":"Failed to send messages"}`))
				return
			}
			w.Write([]byte("{}"))
		case "/v2/bot/message/quota":
			w.Write([]byte(`{"type":"limited","value":500}`))
		case "/v2/bot/message/quota/consumption":
			w.Write([]byte(`{"totalUsage":200}`))
		default:
			w.Write([]byte("{}"))
		}
	}))
}

func (f *fakePlatform) pushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCalls
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func newTestRouter(db *gorm.DB, baseURL string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	client := line.NewClient(baseURL)
	tracker := stats.NewTracker(db)
	dispatcher := notify.NewDispatcher(db, client, tracker)

	nh := NewNotificationHandler(db, dispatcher)
	qh := NewQuotaHandler(db, client, tracker, cache.Noop{}, time.Minute)

	r := gin.New()
	apiGroup := r.Group("/api")
	apiGroup.GET("/quota", qh.GetUsage)
	apiGroup.POST("/quota", qh.GetUsage)
	apiGroup.GET("/quota/official", qh.GetOfficialQuota)
	apiGroup.POST("/notifications/complete", nh.SendCompletion)
	apiGroup.POST("/notifications/complete/share", nh.SendCompletionShare)
	apiGroup.POST("/notifications/progress", nh.SendProgressReport)
	apiGroup.POST("/appointments/decline", nh.Decline)
	apiGroup.POST("/appointments/status", nh.UpdateStatus)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func seed(t *testing.T, db *gorm.DB, status string) {
	t.Helper()
	if err := db.Create(&models.Shop{
		ID: "shop-1", LineBotUserID: "Ubot1", LineChannelToken: "token", LiffID: "liff-1",
	}).Error; err != nil {
		t.Fatalf("failed to seed shop: %v", err)
	}
	if err := db.Create(&models.Appointment{
		ID: "appt-1", ShopID: "shop-1", UserID: "Ucustomer",
		PetName: "Mochi", ServiceType: "Bath", Date: "2024-05-01", Time: "10:00",
		Status: status,
	}).Error; err != nil {
		t.Fatalf("failed to seed appointment: %v", err)
	}
}

func loadAppt(t *testing.T, db *gorm.DB) models.Appointment {
	t.Helper()
	var appt models.Appointment
	if err := db.Where("shop_id = ? AND id = ?", "shop-1", "appt-1").First(&appt).Error; err != nil {
		t.Fatalf("failed to load appointment: %v", err)
	}
	return appt
}

func monthStat(t *testing.T, db *gorm.DB) models.MessageStat {
	t.Helper()
	var stat models.MessageStat
	db.Where("shop_id = ? AND month = ?", "shop-1", time.Now().Format("2006-01")).First(&stat)
	return stat
}

func TestMarkCompleteSuccess(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusConfirmed)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete", `{"shopId":"shop-1","appointmentId":"appt-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	appt := loadAppt(t, db)
	if appt.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", appt.Status)
	}
	if appt.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if got := monthStat(t, db); got.CompletionNotifications != 1 || got.TotalSent != 1 {
		t.Errorf("stats = %+v, want completion=1 total=1", got)
	}
	if fp.pushes() != 1 {
		t.Errorf("push calls = %d, want 1", fp.pushes())
	}
	// The card carries the appointment details.
	for _, want := range []string{"Mochi", "Bath", "2024-05-01", "10:00"} {
		if !strings.Contains(fp.pushBody, want) {
			t.Errorf("push body missing %q", want)
		}
	}
}

func TestMarkCompleteDeliveryFailureLeavesStateUnchanged(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{failPush: true}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusConfirmed)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete", `{"shopId":"shop-1","appointmentId":"appt-1"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Failed to send messages") {
		t.Errorf("platform body not attached: %s", rr.Body.String())
	}

	appt := loadAppt(t, db)
	if appt.Status != models.StatusConfirmed {
		t.Errorf("status = %s, completion must not commit on failed delivery", appt.Status)
	}
	if appt.CompletedAt != nil {
		t.Error("CompletedAt set despite failed delivery")
	}
	if got := monthStat(t, db); got.CompletionNotifications != 0 {
		t.Errorf("completion counter incremented despite failed delivery: %+v", got)
	}
}

func TestMarkCompleteNoCredential(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()

	if err := db.Create(&models.Shop{ID: "shop-1"}).Error; err != nil {
		t.Fatalf("failed to seed shop: %v", err)
	}
	if err := db.Create(&models.Appointment{ID: "appt-1", ShopID: "shop-1", UserID: "Ucustomer", Status: models.StatusConfirmed}).Error; err != nil {
		t.Fatalf("failed to seed appointment: %v", err)
	}
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete", `{"shopId":"shop-1","appointmentId":"appt-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing credential", rr.Code)
	}
	if fp.pushes() != 0 {
		t.Error("external call attempted without credential")
	}
}

func TestCompletionShareRichCard(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusConfirmed)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete/share",
		`{"shopId":"shop-1","appointmentId":"appt-1","imageUrl":"https://example.com/after.jpg","message":"洗完澡香香的"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	if !strings.Contains(fp.pushBody, "https://example.com/after.jpg") {
		t.Error("push body missing hero image url")
	}
	if !strings.Contains(fp.pushBody, "洗完澡香香的") {
		t.Error("push body missing custom note")
	}
	if appt := loadAppt(t, db); appt.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", appt.Status)
	}
}

func TestProgressReportLeavesStatusAlone(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusConfirmed)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/progress", `{"shopId":"shop-1","appointmentId":"appt-1","message":"開始洗澡囉"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	if appt := loadAppt(t, db); appt.Status != models.StatusConfirmed {
		t.Errorf("status = %s, progress report must not change state", appt.Status)
	}
	if got := monthStat(t, db); got.ReminderNotifications != 1 {
		t.Errorf("stats = %+v, want reminder=1", got)
	}
}

func TestDeclineRequiresReason(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusPending)
	r := newTestRouter(db, srv.URL)

	for _, reason := range []string{`""`, `"   "`, `"\t\n"`} {
		rr := postJSON(r, "/api/appointments/decline",
			`{"shopId":"shop-1","appointmentId":"appt-1","reason":`+reason+`}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("reason %s: status = %d, want 400", reason, rr.Code)
		}
	}

	if appt := loadAppt(t, db); appt.Status != models.StatusPending {
		t.Errorf("status = %s, blank reason must not mutate state", appt.Status)
	}
	if fp.pushes() != 0 {
		t.Error("push attempted for rejected decline")
	}
}

func TestDeclineCommitsStateEvenWhenDeliveryFails(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{failPush: true}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusPending)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/appointments/decline",
		`{"shopId":"shop-1","appointmentId":"appt-1","reason":"當日店休"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with embedded warning", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "warning") {
		t.Errorf("body = %s, want partial-success warning", rr.Body.String())
	}

	appt := loadAppt(t, db)
	if appt.Status != models.StatusCancelled {
		t.Errorf("status = %s, decline must commit before delivery", appt.Status)
	}
	if appt.CancelReason != "當日店休" {
		t.Errorf("reason = %q, want persisted reason", appt.CancelReason)
	}
}

func TestDeclineSuccess(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusConfirmed)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/appointments/decline",
		`{"shopId":"shop-1","appointmentId":"appt-1","reason":"當日店休"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "warning") {
		t.Errorf("unexpected warning on clean decline: %s", rr.Body.String())
	}
	if !strings.Contains(fp.pushBody, "當日店休") {
		t.Error("decline card missing the reason")
	}
}

func TestStatusTransitionConfirmSendsNotification(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusPending)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/appointments/status",
		`{"shopId":"shop-1","appointmentId":"appt-1","status":"confirmed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	if appt := loadAppt(t, db); appt.Status != models.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", appt.Status)
	}
	for _, want := range []string{"Mochi", "Bath", "2024-05-01", "10:00"} {
		if !strings.Contains(fp.pushBody, want) {
			t.Errorf("confirmation card missing %q", want)
		}
	}
	if got := monthStat(t, db); got.AppointmentNotifications != 1 {
		t.Errorf("stats = %+v, want appointment=1", got)
	}
}

func TestStatusTransitionRules(t *testing.T) {
	tests := []struct {
		name     string
		from     string
		to       string
		wantCode int
	}{
		{"pending to confirmed", models.StatusPending, models.StatusConfirmed, http.StatusOK},
		{"pending to cancelled", models.StatusPending, models.StatusCancelled, http.StatusOK},
		{"confirmed to cancelled", models.StatusConfirmed, models.StatusCancelled, http.StatusOK},
		{"confirmed to confirmed", models.StatusConfirmed, models.StatusConfirmed, http.StatusBadRequest},
		{"cancelled to confirmed", models.StatusCancelled, models.StatusConfirmed, http.StatusBadRequest},
		{"completed to cancelled", models.StatusCompleted, models.StatusCancelled, http.StatusBadRequest},
		{"pending to completed directly", models.StatusPending, models.StatusCompleted, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			fp := &fakePlatform{}
			srv := fp.server()
			defer srv.Close()
			seed(t, db, tt.from)
			r := newTestRouter(db, srv.URL)

			rr := postJSON(r, "/api/appointments/status",
				`{"shopId":"shop-1","appointmentId":"appt-1","status":"`+tt.to+`"}`)
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				if appt := loadAppt(t, db); appt.Status != tt.from {
					t.Errorf("state mutated on rejected transition: %s", appt.Status)
				}
			}
		})
	}
}

func TestCompletionRequiresConfirmedAppointment(t *testing.T) {
	tests := []struct {
		name string
		from string
		path string
	}{
		{"pending via complete", models.StatusPending, "/api/notifications/complete"},
		{"cancelled via complete", models.StatusCancelled, "/api/notifications/complete"},
		{"pending via share", models.StatusPending, "/api/notifications/complete/share"},
		{"cancelled via share", models.StatusCancelled, "/api/notifications/complete/share"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			fp := &fakePlatform{}
			srv := fp.server()
			defer srv.Close()
			seed(t, db, tt.from)
			r := newTestRouter(db, srv.URL)

			rr := postJSON(r, tt.path, `{"shopId":"shop-1","appointmentId":"appt-1"}`)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
			if appt := loadAppt(t, db); appt.Status != tt.from {
				t.Errorf("status = %s, rejected completion must not mutate state", appt.Status)
			}
			if fp.pushes() != 0 {
				t.Error("push attempted for rejected completion")
			}
		})
	}
}

func TestCompletionShareResendKeepsTimestamp(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()

	completedAt := time.Date(2024, 5, 1, 11, 30, 0, 0, time.UTC)
	if err := db.Create(&models.Shop{ID: "shop-1", LineChannelToken: "token"}).Error; err != nil {
		t.Fatalf("failed to seed shop: %v", err)
	}
	if err := db.Create(&models.Appointment{
		ID: "appt-1", ShopID: "shop-1", UserID: "Ucustomer",
		Status: models.StatusCompleted, CompletedAt: &completedAt,
	}).Error; err != nil {
		t.Fatalf("failed to seed appointment: %v", err)
	}
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete/share",
		`{"shopId":"shop-1","appointmentId":"appt-1","imageUrl":"https://example.com/after.jpg"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if fp.pushes() != 1 {
		t.Errorf("push calls = %d, want 1", fp.pushes())
	}

	appt := loadAppt(t, db)
	if appt.CompletedAt == nil || !appt.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt = %v, resend must not rewrite the original timestamp", appt.CompletedAt)
	}
}

func TestNotificationUnknownShopOrAppointment(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()
	seed(t, db, models.StatusPending)
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete", `{"shopId":"shop-x","appointmentId":"appt-1"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown shop: status = %d, want 404", rr.Code)
	}

	rr = postJSON(r, "/api/notifications/complete", `{"shopId":"shop-1","appointmentId":"appt-x"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown appointment: status = %d, want 404", rr.Code)
	}

	rr = postJSON(r, "/api/notifications/complete", `{"shopId":"","appointmentId":""}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d, want 400", rr.Code)
	}
}

func TestMarkCompleteWalkInCommitsWithoutPush(t *testing.T) {
	db := newTestDB(t)
	fp := &fakePlatform{}
	srv := fp.server()
	defer srv.Close()

	if err := db.Create(&models.Shop{ID: "shop-1", LineChannelToken: "token"}).Error; err != nil {
		t.Fatalf("failed to seed shop: %v", err)
	}
	if err := db.Create(&models.Appointment{
		ID: "appt-1", ShopID: "shop-1", UserID: "walkin_abc123", Status: models.StatusConfirmed,
	}).Error; err != nil {
		t.Fatalf("failed to seed appointment: %v", err)
	}
	r := newTestRouter(db, srv.URL)

	rr := postJSON(r, "/api/notifications/complete", `{"shopId":"shop-1","appointmentId":"appt-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	if appt := loadAppt(t, db); appt.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", appt.Status)
	}
	if fp.pushes() != 0 {
		t.Error("walk-in customer must never be a push target")
	}
	if got := monthStat(t, db); got.TotalSent != 0 {
		t.Errorf("stats incremented for walk-in: %+v", got)
	}
}
