package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/mehdifatimi/formation-api/api/swagger"
	"github.com/mehdifatimi/formation-api/internal/handler"
	"github.com/mehdifatimi/formation-api/internal/middleware"
	"github.com/mehdifatimi/formation-api/internal/models"
	"github.com/mehdifatimi/formation-api/internal/repository"
	"github.com/mehdifatimi/formation-api/internal/service"
	"github.com/mehdifatimi/formation-api/pkg/cache"
	"github.com/mehdifatimi/formation-api/pkg/config"
	"github.com/mehdifatimi/formation-api/pkg/database"
	"github.com/mehdifatimi/formation-api/pkg/logger"
	corsmiddleware "github.com/mehdifatimi/formation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mehdifatimi/formation-api/pkg/middleware/requestid"
)

// @title Formation API
// @version 1.0.0
// @description Training management backend: formations, participants, absences and role-based validation workflow
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caches disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	formationRepo := repository.NewFormationRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	absenceRepo := repository.NewAbsenceRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr, metricsSvc)

	// Services.
	authzSvc := service.NewAuthzService(roleRepo, cacheRepo, userRepo, logr, cfg.Cache.PermissionTTL)
	authSvc := service.NewAuthService(userRepo, roleRepo, cfg.JWT, validate, logr)
	formationSvc := service.NewFormationService(formationRepo, referenceRepo, authzSvc, userRepo, validate, logr)
	participantSvc := service.NewParticipantService(participantRepo, enrollmentRepo, formationRepo, cacheRepo, validate, logr, cfg.Cache.ProgressTTL)
	absenceSvc := service.NewAbsenceService(absenceRepo, participantRepo, formationRepo, cacheRepo, validate, logr, cfg.Cache.StatisticsTTL)
	userSvc := service.NewUserService(userRepo, roleRepo, logr)
	referenceSvc := service.NewReferenceService(referenceRepo)
	reportSvc := service.NewReportService(formationRepo, enrollmentRepo, absenceRepo, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	formationHandler := handler.NewFormationHandler(formationSvc, reportSvc)
	participantHandler := handler.NewParticipantHandler(participantSvc)
	absenceHandler := handler.NewAbsenceHandler(absenceSvc)
	userHandler := handler.NewUserHandler(userSvc, authzSvc)
	referenceHandler := handler.NewReferenceHandler(referenceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	{
		formations := secured.Group("/formations")
		{
			formations.GET("", formationHandler.List)
			formations.GET("/pending-validations",
				middleware.RequirePermission(models.PermValidateFormations),
				formationHandler.PendingValidations)
			formations.GET("/:id", formationHandler.Get)
			formations.POST("",
				middleware.RequirePermission(models.PermManageFormations),
				formationHandler.Create)
			formations.PUT("/:id",
				middleware.RequirePermission(models.PermManageFormations),
				formationHandler.Update)
			formations.PUT("/:id/status",
				middleware.RequirePermission(models.PermManageFormations),
				formationHandler.UpdateStatus)
			formations.DELETE("/:id",
				middleware.RequirePermission(models.PermManageFormations),
				formationHandler.Delete)
			formations.POST("/:id/validate", formationHandler.Validate)
			formations.POST("/:id/reject", formationHandler.Reject)
			if cfg.Exports.Enabled {
				formations.GET("/:id/attendance-sheet",
					middleware.RequirePermission(models.PermViewReports),
					formationHandler.ExportAttendance)
			}
		}

		participants := secured.Group("/participants")
		participants.Use(
			middleware.RequirePermission(models.PermManageParticipants),
			middleware.Audit(userRepo, "PARTICIPANT_WRITE", "participants"))
		{
			participants.GET("", participantHandler.List)
			participants.GET("/progress", participantHandler.Progress)
			participants.GET("/:id", participantHandler.Get)
			participants.POST("", participantHandler.Create)
			participants.PUT("/:id", participantHandler.Update)
			participants.DELETE("/:id", participantHandler.Delete)
			participants.POST("/:id/formations", participantHandler.Attach)
			participants.PUT("/:id/formations/:formationId", participantHandler.UpdateEnrollmentStatus)
			participants.DELETE("/:id/formations/:formationId", participantHandler.Detach)
		}

		secured.GET("/enrollments", participantHandler.ListEnrollments)

		absences := secured.Group("/absences")
		absences.Use(
			middleware.RequirePermission(models.PermManageAbsences),
			middleware.Audit(userRepo, "ABSENCE_WRITE", "absences"))
		{
			absences.GET("", absenceHandler.List)
			absences.GET("/statistics", absenceHandler.Statistics)
			absences.GET("/:id", absenceHandler.Get)
			absences.POST("", absenceHandler.Create)
			absences.PUT("/:id", absenceHandler.Update)
			absences.DELETE("/:id", absenceHandler.Delete)
		}

		users := secured.Group("/users")
		{
			users.GET("",
				middleware.RequireRoles(models.RoleAdmin, models.RoleCDC, models.RoleDRF, models.RoleDR),
				userHandler.List)
			users.GET("/:id",
				middleware.RequireRoles(models.RoleAdmin, models.RoleCDC, models.RoleDRF, models.RoleDR),
				userHandler.Get)
			users.POST("/:id/roles", userHandler.AssignRole)
			users.PUT("/:id/roles", userHandler.SyncRoles)
			users.DELETE("/:id/roles/:role", userHandler.RemoveRole)
		}

		secured.GET("/roles", userHandler.ListRoles)
		secured.GET("/formateurs", referenceHandler.Trainers)
		secured.GET("/villes", referenceHandler.Cities)
		secured.GET("/filieres", referenceHandler.Tracks)
		secured.GET("/system/metrics",
			middleware.RequireRoles(models.RoleAdmin),
			metricsHandler.Snapshot)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
