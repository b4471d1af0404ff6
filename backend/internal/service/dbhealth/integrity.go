package dbhealth

import (
	"context"
	"strconv"
	"time"

	audit "laundry-go-app/backend/internal/domain/audit"

	"gorm.io/gorm"
)

// 评分常量。按发现条数扣分，3/4 类权重递减；阈值以下才算不健康，
// 容忍少量问题以避免告警疲劳。
const (
	penaltyOrphan    = 5
	penaltyNull      = 5
	penaltyForeign   = 3
	penaltyDuplicate = 2

	healthyScoreThreshold = 80
	findingLimit          = 50
)

// Finding 定位一条违反一致性规则的行。
type Finding struct {
	Table  string `json:"table"`
	RowID  int64  `json:"row_id"`
	Rule   string `json:"rule"`
	Detail string `json:"detail,omitempty"`
}

// IntegrityAuditResult 是一次完整性审计的产出。
type IntegrityAuditResult struct {
	Healthy          bool      `json:"healthy"`
	Score            int       `json:"score"`
	OrphanedRecords  []Finding `json:"orphaned_records"`
	NullViolations   []Finding `json:"null_violations"`
	ForeignKeyIssues []Finding `json:"foreign_key_issues"`
	DuplicateRecords []Finding `json:"duplicate_records"`
	DurationMillis   int64     `json:"duration_ms"`
}

// RunIntegrityAudit 在单个事务里依次执行四类一致性检查并给出加权评分，
// 四类检查看到同一个快照。检查只含 SELECT，不写任何业务表。
// 每次调用都会写入一条摘要审计记录（分数、各类计数、耗时），从不落全量
// 发现列表，避免审计表膨胀。
func (s *Service) RunIntegrityAudit(ctx context.Context, actor Actor) (IntegrityAuditResult, error) {
	start := s.now()
	result := IntegrityAuditResult{
		OrphanedRecords:  []Finding{},
		NullViolations:   []Finding{},
		ForeignKeyIssues: []Finding{},
		DuplicateRecords: []Finding{},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result.OrphanedRecords = s.checkOrphans(tx)
		result.NullViolations = s.checkNullViolations(tx)
		result.ForeignKeyIssues = s.checkForeignKeyIssues(tx)
		result.DuplicateRecords = s.checkDuplicates(tx)
		return nil
	})

	elapsed := time.Since(start)
	result.DurationMillis = elapsed.Milliseconds()
	s.recordSlowOp(ctx, "integrity_audit", elapsed)

	if err != nil {
		s.writeAudit(ctx, actor, audit.ActionIntegrityAudit, "database", "", map[string]any{
			"status": "failed",
			"error":  err.Error(),
		})
		return result, err
	}

	result.Score = scoreFindings(result)
	result.Healthy = result.Score >= healthyScoreThreshold

	s.writeAudit(ctx, actor, audit.ActionIntegrityAudit, "database", "", map[string]any{
		"status":             "completed",
		"score":              result.Score,
		"healthy":            result.Healthy,
		"orphaned_records":   len(result.OrphanedRecords),
		"null_violations":    len(result.NullViolations),
		"foreign_key_issues": len(result.ForeignKeyIssues),
		"duplicate_records":  len(result.DuplicateRecords),
		"duration_ms":        result.DurationMillis,
	})
	return result, nil
}

// scoreFindings 从 100 起按类扣分，下限为 0。发现越多分数单调不升。
func scoreFindings(result IntegrityAuditResult) int {
	score := 100
	score -= penaltyOrphan * len(result.OrphanedRecords)
	score -= penaltyNull * len(result.NullViolations)
	score -= penaltyForeign * len(result.ForeignKeyIssues)
	score -= penaltyDuplicate * len(result.DuplicateRecords)
	if score < 0 {
		score = 0
	}
	return score
}

// orphanCheck 声明一条外键孤儿检查。
type orphanCheck struct {
	table string
	rule  string
	query string
}

var orphanChecks = []orphanCheck{
	{
		table: "orders",
		rule:  "orders.customer_id -> customers.id",
		query: `SELECT o.id FROM orders o LEFT JOIN customers c ON o.customer_id = c.id
			WHERE c.id IS NULL LIMIT ?`,
	},
	{
		table: "orders",
		rule:  "orders.service_id -> services.id",
		query: `SELECT o.id FROM orders o LEFT JOIN services sv ON o.service_id = sv.id
			WHERE sv.id IS NULL LIMIT ?`,
	},
	{
		table: "tracks",
		rule:  "tracks.order_id -> orders.id",
		query: `SELECT t.id FROM tracks t LEFT JOIN orders o ON t.order_id = o.id
			WHERE o.id IS NULL LIMIT ?`,
	},
}

// checkOrphans 查找父行已不存在的外键引用。
func (s *Service) checkOrphans(tx *gorm.DB) []Finding {
	findings := []Finding{}
	for _, check := range orphanChecks {
		var ids []int64
		if err := tx.Raw(check.query, findingLimit).Scan(&ids).Error; err != nil {
			s.logger.Warnw("orphan check failed", "rule", check.rule, "error", err)
			continue
		}
		for _, id := range ids {
			findings = append(findings, Finding{Table: check.table, RowID: id, Rule: check.rule})
		}
	}
	return findings
}

// nullCheck 声明一条逻辑必填字段检查：字段未必有 NOT NULL 约束，但业务上不允许为空。
type nullCheck struct {
	table string
	rule  string
	query string
}

var nullChecks = []nullCheck{
	{
		table: "customers",
		rule:  "customers.name must not be empty",
		query: `SELECT id FROM customers WHERE name IS NULL OR TRIM(name) = '' LIMIT ?`,
	},
	{
		table: "orders",
		rule:  "orders.order_number must not be empty",
		query: `SELECT id FROM orders WHERE order_number IS NULL OR TRIM(order_number) = '' LIMIT ?`,
	},
	{
		table: "services",
		rule:  "services.name must not be empty",
		query: `SELECT id FROM services WHERE name IS NULL OR TRIM(name) = '' LIMIT ?`,
	},
}

// checkNullViolations 查找逻辑必填列为空的行。
func (s *Service) checkNullViolations(tx *gorm.DB) []Finding {
	findings := []Finding{}
	for _, check := range nullChecks {
		var ids []int64
		if err := tx.Raw(check.query, findingLimit).Scan(&ids).Error; err != nil {
			s.logger.Warnw("null check failed", "rule", check.rule, "error", err)
			continue
		}
		for _, id := range ids {
			findings = append(findings, Finding{Table: check.table, RowID: id, Rule: check.rule})
		}
	}
	return findings
}

// checkForeignKeyIssues 查找与普通孤儿不同的结构性问题：
// 外键列被写成了非整数类型，或可空外键悬空指向已删除的父行。
func (s *Service) checkForeignKeyIssues(tx *gorm.DB) []Finding {
	findings := []Finding{}

	// SQLite 列是动态类型，历史数据里可能混入文本型外键值。
	var ids []int64
	err := tx.Raw(`SELECT id FROM orders
		WHERE typeof(customer_id) NOT IN ('integer') OR typeof(service_id) NOT IN ('integer')
		LIMIT ?`, findingLimit).Scan(&ids).Error
	if err != nil {
		s.logger.Warnw("foreign key type check failed", "error", err)
	} else {
		for _, id := range ids {
			findings = append(findings, Finding{
				Table: "orders", RowID: id,
				Rule: "orders foreign key column has non-integer type",
			})
		}
	}

	ids = ids[:0]
	err = tx.Raw(`SELECT t.id FROM tracks t
		LEFT JOIN workers w ON t.worker_id = w.id
		WHERE t.worker_id IS NOT NULL AND w.id IS NULL
		LIMIT ?`, findingLimit).Scan(&ids).Error
	if err != nil {
		s.logger.Warnw("dangling worker check failed", "error", err)
	} else {
		for _, id := range ids {
			findings = append(findings, Finding{
				Table: "tracks", RowID: id,
				Rule: "tracks.worker_id references missing worker",
			})
		}
	}

	return findings
}

// duplicateKey 承接重复键查询的单行结果。
type duplicateKey struct {
	RowID int64  `gorm:"column:row_id"`
	Key   string `gorm:"column:dup_key"`
	N     int64  `gorm:"column:n"`
}

// duplicateCheck 声明一条本应唯一但未被约束强制的键检查。
type duplicateCheck struct {
	table string
	rule  string
	query string
}

var duplicateChecks = []duplicateCheck{
	{
		table: "orders",
		rule:  "orders.order_number must be unique",
		query: `SELECT MIN(id) AS row_id, order_number AS dup_key, COUNT(*) AS n FROM orders
			WHERE order_number IS NOT NULL AND TRIM(order_number) != ''
			GROUP BY order_number HAVING COUNT(*) > 1 LIMIT ?`,
	},
	{
		table: "services",
		rule:  "services.name must be unique",
		query: `SELECT MIN(id) AS row_id, name AS dup_key, COUNT(*) AS n FROM services
			GROUP BY name HAVING COUNT(*) > 1 LIMIT ?`,
	},
	{
		table: "workers",
		rule:  "workers.email must be unique",
		query: `SELECT MIN(id) AS row_id, email AS dup_key, COUNT(*) AS n FROM workers
			WHERE email IS NOT NULL GROUP BY email HAVING COUNT(*) > 1 LIMIT ?`,
	},
}

// checkDuplicates 查找违背预期唯一性的键，每个重复键产出一条发现。
func (s *Service) checkDuplicates(tx *gorm.DB) []Finding {
	findings := []Finding{}
	for _, check := range duplicateChecks {
		var rows []duplicateKey
		if err := tx.Raw(check.query, findingLimit).Scan(&rows).Error; err != nil {
			s.logger.Warnw("duplicate check failed", "rule", check.rule, "error", err)
			continue
		}
		for _, row := range rows {
			findings = append(findings, Finding{
				Table:  check.table,
				RowID:  row.RowID,
				Rule:   check.rule,
				Detail: intPlural(row.N, "row"),
			})
		}
	}
	return findings
}

func intPlural(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}
