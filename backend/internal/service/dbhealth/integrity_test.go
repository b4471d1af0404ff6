package dbhealth

import (
	"context"
	"strings"
	"testing"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"
	laundry "laundry-go-app/backend/internal/domain/laundry"
)

func seedCleanBaseline(t *testing.T, svc *Service) (laundry.Customer, laundry.Service) {
	t.Helper()

	customer := laundry.Customer{Name: "Ada", Phone: "13800000001", CreatedAt: time.Now()}
	if err := svc.db.Create(&customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	service := laundry.Service{Name: "Dry Clean", Price: 25, CreatedAt: time.Now()}
	if err := svc.db.Create(&service).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	order := laundry.Order{
		OrderNumber: "LD-1001",
		CustomerID:  customer.ID,
		ServiceID:   service.ID,
		TotalCost:   25,
		CreatedAt:   time.Now(),
	}
	if err := svc.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return customer, service
}

func TestIntegrityAuditCleanDatabaseScoresFull(t *testing.T) {
	db := openMemDB(t)
	svc, auditRepo := newTestService(t, db, Config{})
	seedCleanBaseline(t, svc)

	result, err := svc.RunIntegrityAudit(context.Background(), testActor)
	if err != nil {
		t.Fatalf("run integrity audit: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("score = %d, want 100 on a clean database", result.Score)
	}
	if !result.Healthy {
		t.Fatalf("clean database must be healthy")
	}
	if len(result.OrphanedRecords)+len(result.NullViolations)+
		len(result.ForeignKeyIssues)+len(result.DuplicateRecords) != 0 {
		t.Fatalf("clean database should yield no findings: %+v", result)
	}

	count, err := auditRepo.CountByAction(context.Background(), audit.ActionIntegrityAudit)
	if err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("every audit run must write exactly one summary row, got %d", count)
	}
}

func TestIntegrityAuditSingleOrphanScoresNinetyFive(t *testing.T) {
	db := openMemDB(t)
	svc, _ := newTestService(t, db, Config{})
	_, service := seedCleanBaseline(t, svc)

	orphan := laundry.Order{
		OrderNumber: "LD-1002",
		CustomerID:  9999,
		ServiceID:   service.ID,
		CreatedAt:   time.Now(),
	}
	if err := svc.db.Create(&orphan).Error; err != nil {
		t.Fatalf("seed orphan order: %v", err)
	}

	result, err := svc.RunIntegrityAudit(context.Background(), testActor)
	if err != nil {
		t.Fatalf("run integrity audit: %v", err)
	}
	if len(result.OrphanedRecords) != 1 {
		t.Fatalf("orphaned records = %d, want 1", len(result.OrphanedRecords))
	}
	if result.Score != 95 {
		t.Fatalf("score = %d, want 95 for a single orphan", result.Score)
	}
	if !result.Healthy {
		t.Fatalf("score 95 is above the healthy threshold, must report healthy")
	}

	finding := result.OrphanedRecords[0]
	if finding.Table != "orders" || finding.RowID != int64(orphan.ID) {
		t.Fatalf("finding should locate the orphan row, got %+v", finding)
	}
}

func TestIntegrityAuditScoreIsMonotonicInFindings(t *testing.T) {
	base := IntegrityAuditResult{}
	if scoreFindings(base) != 100 {
		t.Fatalf("no findings must score 100")
	}

	prev := 100
	withFindings := IntegrityAuditResult{}
	for i := 0; i < 30; i++ {
		withFindings.DuplicateRecords = append(withFindings.DuplicateRecords, Finding{})
		score := scoreFindings(withFindings)
		if score > prev {
			t.Fatalf("score must never increase as findings grow: %d -> %d", prev, score)
		}
		if score < 0 {
			t.Fatalf("score must be floored at zero, got %d", score)
		}
		prev = score
	}
	// 30 个重复键 x 2 分 = 60 分扣减。
	if prev != 40 {
		t.Fatalf("score = %d, want 40 after 30 duplicate findings", prev)
	}
}

func TestIntegrityAuditDetectsNullAndDuplicateViolations(t *testing.T) {
	db := openMemDB(t)
	svc, _ := newTestService(t, db, Config{})
	customer, service := seedCleanBaseline(t, svc)

	bad := []laundry.Order{
		{OrderNumber: "", CustomerID: customer.ID, ServiceID: service.ID, CreatedAt: time.Now()},
		{OrderNumber: "LD-1001", CustomerID: customer.ID, ServiceID: service.ID, CreatedAt: time.Now()},
	}
	for i := range bad {
		if err := svc.db.Create(&bad[i]).Error; err != nil {
			t.Fatalf("seed bad order: %v", err)
		}
	}

	result, err := svc.RunIntegrityAudit(context.Background(), testActor)
	if err != nil {
		t.Fatalf("run integrity audit: %v", err)
	}

	if len(result.NullViolations) != 1 {
		t.Fatalf("null violations = %d, want 1", len(result.NullViolations))
	}
	if len(result.DuplicateRecords) != 1 {
		t.Fatalf("duplicate findings = %d, want 1 (one per duplicated key)", len(result.DuplicateRecords))
	}
	dup := result.DuplicateRecords[0]
	if !strings.Contains(dup.Detail, "2 rows") {
		t.Fatalf("duplicate detail should report the row count, got %q", dup.Detail)
	}
	// 一条空单号 (5) + 一个重复键 (2)。
	if result.Score != 93 {
		t.Fatalf("score = %d, want 93", result.Score)
	}
}

func TestIntegrityAuditSummaryRowOmitsFindingDetails(t *testing.T) {
	db := openMemDB(t)
	svc, _ := newTestService(t, db, Config{})
	_, service := seedCleanBaseline(t, svc)

	orphan := laundry.Order{OrderNumber: "LD-2001", CustomerID: 4242, ServiceID: service.ID, CreatedAt: time.Now()}
	if err := svc.db.Create(&orphan).Error; err != nil {
		t.Fatalf("seed orphan order: %v", err)
	}

	if _, err := svc.RunIntegrityAudit(context.Background(), testActor); err != nil {
		t.Fatalf("run integrity audit: %v", err)
	}

	var entry audit.LogEntry
	if err := svc.db.Where("action = ?", audit.ActionIntegrityAudit).First(&entry).Error; err != nil {
		t.Fatalf("load audit row: %v", err)
	}

	details := string(entry.Details)
	if !strings.Contains(details, `"score":95`) {
		t.Fatalf("summary must carry the score, got %s", details)
	}
	if !strings.Contains(details, `"orphaned_records":1`) {
		t.Fatalf("summary must carry per-class counts, got %s", details)
	}
	if strings.Contains(details, "LD-2001") || strings.Contains(details, "row_id") {
		t.Fatalf("summary must never embed individual findings, got %s", details)
	}
}
