package handler

import (
	"errors"
	"net/http"

	response "laundry-go-app/backend/internal/infra/common"
	"laundry-go-app/backend/internal/middleware"
	dbhealthsvc "laundry-go-app/backend/internal/service/dbhealth"

	"github.com/gin-gonic/gin"
)

// DBHealthHandler 暴露数据库健康与自监控子系统的管理接口。
// 所有路由都要求管理员角色；非管理员一律 403，不落审计（被拒绝的请求
// 不算管理动作）。
type DBHealthHandler struct {
	service *dbhealthsvc.Service
}

// NewDBHealthHandler 构造健康接口 Handler，注入监控服务。
func NewDBHealthHandler(service *dbhealthsvc.Service) *DBHealthHandler {
	return &DBHealthHandler{service: service}
}

// Health 返回仪表盘轮询的红绿灯汇总。
func (h *DBHealthHandler) Health(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	response.Success(c, http.StatusOK, h.service.GetHealthSummary(c.Request.Context()), nil)
}

// Stats 返回延迟基准、存储、表体征、同步与资源的组合载荷。
func (h *DBHealthHandler) Stats(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	response.Success(c, http.StatusOK, h.service.GetDatabaseStats(c.Request.Context()), nil)
}

// LatencyHistory 返回按时间排序的探针采样历史。
func (h *DBHealthHandler) LatencyHistory(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"samples": h.service.LatencyHistory(),
	}, nil)
}

// Performance 返回慢操作热力图聚合。
func (h *DBHealthHandler) Performance(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	heatmap, err := h.service.GetPerformanceHeatmap(c.Request.Context())
	if err != nil {
		response.FailWithError(c, http.StatusInternalServerError, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, heatmap, nil)
}

// maintenanceRequest 是 POST /maintenance 的请求体。
type maintenanceRequest struct {
	Action string `json:"action"`
}

// Maintenance 执行封闭集合内的维护动作。未知动作 400 且不执行任何语句；
// 执行失败 500，但审计记录仍然会写入。
func (h *DBHealthHandler) Maintenance(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var req maintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrBadRequest, "invalid request body", nil)
		return
	}

	action, err := dbhealthsvc.ParseAction(req.Action)
	if err != nil {
		response.FailWithError(c, http.StatusBadRequest, err, response.ErrUnknownAction)
		return
	}

	entry, err := h.service.RunMaintenance(c.Request.Context(), action, actorFromContext(c))
	if err != nil {
		if errors.Is(err, dbhealthsvc.ErrMaintenanceBusy) {
			response.FailWithError(c, http.StatusConflict, err, response.ErrMaintenanceBusy)
			return
		}
		response.FailWithError(c, http.StatusInternalServerError, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, entry, nil)
}

// Integrity 运行完整性审计。GET 带副作用是有意为之：审计本身就是一次
// 应被记录的管理动作。
func (h *DBHealthHandler) Integrity(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	result, err := h.service.RunIntegrityAudit(c.Request.Context(), actorFromContext(c))
	if err != nil {
		response.FailWithError(c, http.StatusInternalServerError, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, result, nil)
}

// Migrations 列出已应用的迁移文件，最近的在前，最多 10 份。
func (h *DBHealthHandler) Migrations(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	migrations, err := h.service.ListMigrations(c.Request.Context())
	if err != nil {
		response.FailWithError(c, http.StatusInternalServerError, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"migrations": migrations}, nil)
}

// Resources 返回进程与宿主机资源快照。
func (h *DBHealthHandler) Resources(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	response.Success(c, http.StatusOK, h.service.GetResourceMetrics(), nil)
}

// AccessLog 记录一次监控面板打开事件，固定返回成功。
func (h *DBHealthHandler) AccessLog(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	h.service.RecordDashboardAccess(c.Request.Context(), actorFromContext(c))
	response.Success(c, http.StatusOK, gin.H{"recorded": true}, nil)
}

// Backup 创建一份带时间戳的数据库备份。
func (h *DBHealthHandler) Backup(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	record, err := h.service.CreateBackup(c.Request.Context(), actorFromContext(c))
	if err != nil {
		if errors.Is(err, dbhealthsvc.ErrMaintenanceBusy) {
			response.FailWithError(c, http.StatusConflict, err, response.ErrMaintenanceBusy)
			return
		}
		response.FailWithError(c, http.StatusInternalServerError, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, record, nil)
}

// Incidents 返回熔断器状态与最近的故障相关审计行。
func (h *DBHealthHandler) Incidents(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	report, err := h.service.GetIncidents(c.Request.Context())
	if err != nil {
		response.FailWithError(c, http.StatusInternalServerError, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, report, nil)
}

// requireAdmin 校验管理员角色，不满足时直接写出 403。
func (h *DBHealthHandler) requireAdmin(c *gin.Context) bool {
	if h == nil || h.service == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal, "db health service unavailable", nil)
		return false
	}
	if !middleware.IdentityFromContext(c).IsAdmin() {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden, "admin privilege required", nil)
		return false
	}
	return true
}

// actorFromContext 将请求身份折算为审计用的 Actor。
func actorFromContext(c *gin.Context) dbhealthsvc.Actor {
	identity := middleware.IdentityFromContext(c)
	return dbhealthsvc.Actor{
		ID:             identity.ID,
		Username:       identity.Username,
		FranchiseScope: identity.FranchiseScope,
		IPAddress:      c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	}
}
