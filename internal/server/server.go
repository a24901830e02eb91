// Package server 本地 HTTP 界面：工作计时、管理后台与配置。
package server

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"worktracker/internal/activity"
	"worktracker/internal/admin"
	"worktracker/internal/config"
	"worktracker/internal/view"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"

	"github.com/gin-gonic/gin"
)

//go:embed web/index.html
var indexHTML []byte

// Worker 工作计时界面的手势；每个调用在事件循环上执行完才返回
type Worker interface {
	Login(ctx context.Context, username string) error
	SelectClient(ctx context.Context, clientID int64) error
	SelectProject(ctx context.Context, projectID int64) error
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	TogglePause(ctx context.Context) error
	Stop(ctx context.Context) error
	EditNotes(ctx context.Context, text string) error
	Input(kind activity.InputKind)
}

// ScreenLister 可截取的屏幕
type ScreenLister interface {
	Screens() []models.ScreenInfo
}

// Server Web 服务器
type Server struct {
	router     *gin.Engine
	configMgr  *config.Manager
	worker     Worker
	screen     *view.Store
	dashboard  *admin.Dashboard
	screens    ScreenLister
	addr       string
	version    string
	now        func() time.Time
	httpServer *http.Server
}

// NewServer 创建 Web 服务器；screens 可为 nil
func NewServer(
	configMgr *config.Manager,
	worker Worker,
	screen *view.Store,
	dashboard *admin.Dashboard,
	screens ScreenLister,
	version string,
) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	serverCfg := configMgr.GetServer()
	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)

	s := &Server{
		router:    router,
		configMgr: configMgr,
		worker:    worker,
		screen:    screen,
		dashboard: dashboard,
		screens:   screens,
		addr:      addr,
		version:   version,
		now:       time.Now,
	}

	if serverCfg.EnableCORS {
		router.Use(cors())
	}
	s.setupRoutes()
	return s
}

// Handler 路由（测试用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr 监听地址
func (s *Server) Addr() string {
	return s.addr
}

// URL 浏览器访问地址
func (s *Server) URL() string {
	return "http://" + s.addr
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)

	api := s.router.Group("/api")
	{
		// 系统信息
		api.GET("/version", s.handleGetVersion)
		api.GET("/config", s.handleGetConfig)
		api.PUT("/config", s.handleUpdateConfig)
		api.GET("/screens", s.handleGetScreens)

		// 工作计时
		api.POST("/login", s.handleLogin)
		api.GET("/timer/view", s.handleGetView)
		api.POST("/timer/client", s.handleSelectClient)
		api.POST("/timer/project", s.handleSelectProject)
		api.POST("/timer/start", s.gesture(s.worker.Start))
		api.POST("/timer/pause", s.gesture(s.worker.Pause))
		api.POST("/timer/resume", s.gesture(s.worker.Resume))
		api.POST("/timer/toggle", s.gesture(s.worker.TogglePause))
		api.POST("/timer/stop", s.gesture(s.worker.Stop))
		api.PUT("/timer/notes", s.handleEditNotes)
		api.POST("/prompts/:id", s.handleAnswerPrompt)
		api.DELETE("/alerts", s.handleDismissAlert)
		api.POST("/activity", s.handleActivity)

		// 管理后台
		adm := api.Group("/admin")
		adm.GET("/users", s.handleGetUsers)
		adm.GET("/entries", s.handleGetEntries)
		adm.DELETE("/entries/:id", s.handleDeleteEntry)
		adm.GET("/entries/:id/screenshots", s.handleGetEntryScreenshots)
		adm.GET("/screenshots/:id", s.handleGetLightbox)
		adm.GET("/screenshots/:id/thumbnail", s.handleGetThumbnail)
		adm.GET("/reports/:kind", s.handleGetReport)
		adm.GET("/export", s.handleExport)
	}
}

// Start 启动服务器（阻塞）
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	fmt.Printf("🌐 Web服务器启动: %s\n", s.URL())
	logger.Info("http server listening on %s", s.addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown: %v", err)
		return err
	}

	fmt.Println("✅ Web 服务器已关闭")
	return nil
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ===== 系统 =====

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"name":    "WorkTracker",
	})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.configMgr.Get())
}

// handleUpdateConfig 整体替换配置
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var newConfig models.AppConfig
	if err := c.ShouldBindJSON(&newConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.configMgr.Update(func(cfg *models.AppConfig) {
		*cfg = newConfig
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "config updated"})
}

func (s *Server) handleGetScreens(c *gin.Context) {
	if s.screens == nil {
		c.JSON(http.StatusOK, []models.ScreenInfo{})
		return
	}
	c.JSON(http.StatusOK, s.screens.Screens())
}
