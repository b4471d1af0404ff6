package bootstrap

import (
	"context"
	"net/http"

	"laundry-go-app/backend/internal/app"
	"laundry-go-app/backend/internal/handler"
	"laundry-go-app/backend/internal/infra/storagefs"
	"laundry-go-app/backend/internal/middleware"
	"laundry-go-app/backend/internal/repository"
	"laundry-go-app/backend/internal/server"
	dbhealthsvc "laundry-go-app/backend/internal/service/dbhealth"

	"go.uber.org/zap"
)

// Application 聚合装配完成的服务与路由，供入口进程托管。
type Application struct {
	Resources *app.Resources
	HealthSvc *dbhealthsvc.Service
	Router    http.Handler
}

// BuildApplication 完成依赖注入：仓储、文件系统适配、健康服务、Handler 与路由。
func BuildApplication(ctx context.Context, logger *zap.SugaredLogger, resources *app.Resources) (*Application, error) {
	auditRepo := repository.NewAuditLogRepository(resources.DBConn())
	syncRepo := repository.NewSyncQueueRepository(resources.DBConn())
	slowOpRepo := repository.NewSlowOpRepository(resources.DBConn())

	storageCfg := resources.Config.Storage
	healthService := dbhealthsvc.NewService(dbhealthsvc.Config{
		DBPath:           storageCfg.DBPath,
		BackupDir:        storageCfg.BackupDir,
		MigrationsDir:    storageCfg.MigrationsDir,
		QuotaBytes:       storageCfg.QuotaBytes,
		BreakerThreshold: storageCfg.BreakerThreshold,
		LatencyCeiling:   storageCfg.LatencyCeiling,
		HistoryCapacity:  storageCfg.HistoryCapacity,
		SlowOpThreshold:  storageCfg.SlowOpThreshold,
		SyncStalledAfter: storageCfg.SyncStalledAfter,
	}, logger, resources.DBConn(), storagefs.NewOSStorage(), auditRepo, syncRepo, slowOpRepo)

	healthHandler := handler.NewDBHealthHandler(healthService)
	authMiddleware := middleware.NewAuthMiddleware(resources.Config.Server.JWTSecret)

	router := server.NewRouter(server.RouterOptions{
		DBHealthHandler: healthHandler,
		AuthMW:          authMiddleware,
	})

	return &Application{
		Resources: resources,
		HealthSvc: healthService,
		Router:    router,
	}, nil
}
