package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	audit "laundry-go-app/backend/internal/domain/audit"
	laundry "laundry-go-app/backend/internal/domain/laundry"
	slowop "laundry-go-app/backend/internal/domain/slowop"
	syncqueue "laundry-go-app/backend/internal/domain/syncqueue"
	"laundry-go-app/backend/internal/infra/storagefs"
	"laundry-go-app/backend/internal/middleware"
	"laundry-go-app/backend/internal/repository"
	dbhealthsvc "laundry-go-app/backend/internal/service/dbhealth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T, identity middleware.Identity) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&laundry.Customer{}, &laundry.Service{}, &laundry.Order{},
		&laundry.Track{}, &laundry.Worker{},
		&audit.LogEntry{}, &syncqueue.Entry{}, &slowop.Record{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	svc := dbhealthsvc.NewService(dbhealthsvc.Config{
		DBPath:        filepath.Join(t.TempDir(), "health.db"),
		BackupDir:     filepath.Join(t.TempDir(), "backups"),
		MigrationsDir: filepath.Join(t.TempDir(), "migrations"),
	}, zap.NewNop().Sugar(), db, storagefs.NewOSStorage(),
		repository.NewAuditLogRepository(db),
		repository.NewSyncQueueRepository(db),
		repository.NewSlowOpRepository(db))

	h := NewDBHealthHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.IdentityKey, identity)
	})

	group := r.Group("/api/admin/database")
	group.GET("/health", h.Health)
	group.GET("/stats", h.Stats)
	group.GET("/latency-history", h.LatencyHistory)
	group.GET("/performance", h.Performance)
	group.POST("/maintenance", h.Maintenance)
	group.GET("/integrity", h.Integrity)
	group.GET("/migrations", h.Migrations)
	group.GET("/resources", h.Resources)
	group.POST("/access-log", h.AccessLog)
	group.POST("/backup", h.Backup)
	group.GET("/incidents", h.Incidents)
	return r, db
}

func adminIdentity() middleware.Identity {
	return middleware.Identity{ID: 1, Username: "admin", Role: middleware.RoleAdmin}
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestEndpointsRejectNonAdmin(t *testing.T) {
	worker := middleware.Identity{ID: 7, Username: "worker", Role: "worker"}
	r, _ := setupRouter(t, worker)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/admin/database/health"},
		{http.MethodGet, "/api/admin/database/stats"},
		{http.MethodPost, "/api/admin/database/maintenance"},
		{http.MethodPost, "/api/admin/database/backup"},
		{http.MethodGet, "/api/admin/database/incidents"},
	}
	for _, tc := range paths {
		rec := doRequest(t, r, tc.method, tc.path, []byte(`{}`))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s status = %d, want 403", tc.method, tc.path, rec.Code)
		}
		body := decodeBody(t, rec)
		if success, _ := body["success"].(bool); success {
			t.Fatalf("%s %s rejected request must report success=false", tc.method, tc.path)
		}
	}
}

func TestMaintenanceUnknownActionReturnsBadRequest(t *testing.T) {
	r, db := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodPost, "/api/admin/database/maintenance",
		[]byte(`{"action":"dropTables"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "UNKNOWN_ACTION" {
		t.Fatalf("error code should be UNKNOWN_ACTION, got %v", body)
	}

	// 校验失败不落审计。
	var count int64
	if err := db.Model(&audit.LogEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected action must not write audit rows, got %d", count)
	}
}

func TestMaintenanceMalformedBodyReturnsBadRequest(t *testing.T) {
	r, _ := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodPost, "/api/admin/database/maintenance",
		[]byte(`{"action":`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMaintenanceResetCircuitSucceeds(t *testing.T) {
	r, db := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodPost, "/api/admin/database/maintenance",
		[]byte(`{"action":"resetCircuit"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if success, _ := body["success"].(bool); !success {
		t.Fatalf("response should report success, got %v", body)
	}

	var count int64
	if err := db.Model(&audit.LogEntry{}).
		Where("action = ?", audit.ActionMaintenance).
		Count(&count).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("maintenance audit rows = %d, want 1", count)
	}
}

func TestAccessLogRecordsDashboardOpen(t *testing.T) {
	r, db := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodPost, "/api/admin/database/access-log", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Fatalf("body should confirm success, got %s", rec.Body.String())
	}

	var entry audit.LogEntry
	if err := db.Where("action = ?", audit.ActionDashboardAccess).First(&entry).Error; err != nil {
		t.Fatalf("access-log must write an audit row: %v", err)
	}
	if entry.ActorName != "admin" {
		t.Fatalf("audit actor = %q, want admin", entry.ActorName)
	}
}

func TestStatsReturnsCombinedPayload(t *testing.T) {
	r, _ := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodGet, "/api/admin/database/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data == nil {
		t.Fatalf("stats payload missing data envelope: %v", body)
	}
	for _, key := range []string{"status", "latency", "storage", "tables", "sync", "resources"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("stats payload missing %q section: %v", key, data)
		}
	}
	latency, _ := data["latency"].(map[string]any)
	if open, _ := latency["circuit_open"].(bool); open {
		t.Fatalf("healthy store should keep the circuit closed")
	}
}

func TestIncidentsReturnsBreakerState(t *testing.T) {
	r, _ := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodGet, "/api/admin/database/incidents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data == nil {
		t.Fatalf("incidents payload missing data envelope: %v", body)
	}
	if _, ok := data["circuit_breaker"]; !ok {
		t.Fatalf("incidents payload must expose breaker state: %v", data)
	}
	incidents, ok := data["recent_incidents"].([]any)
	if !ok {
		t.Fatalf("recent_incidents must be an array even when empty: %v", data)
	}
	if len(incidents) != 0 {
		t.Fatalf("fresh store should have no incidents, got %d", len(incidents))
	}
}

func TestIntegrityEndpointAuditsEachRun(t *testing.T) {
	r, db := setupRouter(t, adminIdentity())

	rec := doRequest(t, r, http.MethodGet, "/api/admin/database/integrity", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data == nil {
		t.Fatalf("integrity payload missing data envelope: %v", body)
	}
	if score, _ := data["score"].(float64); score != 100 {
		t.Fatalf("empty database should score 100, got %v", data["score"])
	}

	var count int64
	if err := db.Model(&audit.LogEntry{}).
		Where("action = ?", audit.ActionIntegrityAudit).
		Count(&count).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("integrity audit rows = %d, want 1", count)
	}
}
