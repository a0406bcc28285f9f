package routes

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/scoula/config"
	"github.com/cppla/scoula/controllers"
	"github.com/cppla/scoula/middleware"
	"github.com/cppla/scoula/services"
	"github.com/cppla/scoula/utils"
)

const indexPage = "./static/index.html"

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 20

	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Security chain: resolve the bearer token, then apply the route table
	r.Use(middleware.Authenticate())
	r.Use(middleware.Authorize(middleware.DefaultRules()))

	r.Static("/static", "./static")

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	boardService := services.NewBoardService(db, cfg.UploadDir)
	memberService := services.NewMemberService(db, cfg.AvatarDir)

	boardController := controllers.NewBoardController(boardService)
	memberController := controllers.NewMemberController(memberService, cfg.DefaultAvatar)
	authController := controllers.NewAuthController(memberService, time.Duration(cfg.JWTExpireHours)*time.Hour)

	limit := middleware.RateLimit(cfg.RateLimitPerMinute)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/login", limit, authController.Login)
	authGroup.POST("/logout", authController.Logout)

	boardGroup := api.Group("/board")
	boardGroup.GET("", boardController.List)
	boardGroup.POST("", boardController.Create)
	boardGroup.GET("/:no", boardController.Get)
	boardGroup.PUT("/:no", boardController.Update)
	boardGroup.DELETE("/:no", boardController.Delete)
	boardGroup.GET("/download/:no", boardController.Download)
	boardGroup.DELETE("/deleteAttachment/:no", boardController.DeleteAttachment)

	memberGroup := api.Group("/member")
	memberGroup.POST("", limit, memberController.Join)
	memberGroup.GET("/checkusername/:username", memberController.CheckUsername)
	memberGroup.GET("/:username", memberController.Get)
	memberGroup.PUT("/:username", memberController.Update)
	memberGroup.PUT("/:username/changepassword", memberController.ChangePassword)
	memberGroup.GET("/:username/avatar", memberController.Avatar)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			utils.Error(ctx, http.StatusNotFound, 40404, "static asset not found")
			return
		}
		// SPA entry for client-side routes, when a frontend build is deployed
		if _, err := os.Stat(indexPage); err == nil {
			ctx.Status(http.StatusOK)
			ctx.File(indexPage)
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
