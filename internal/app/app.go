// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/StoryboardStudio/internal/api"
	"github.com/Corphon/StoryboardStudio/internal/config"
	"github.com/Corphon/StoryboardStudio/internal/di"
	"github.com/Corphon/StoryboardStudio/internal/seed"
	"github.com/Corphon/StoryboardStudio/internal/services"
	"github.com/Corphon/StoryboardStudio/internal/tree"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// 关闭服务器的最长等待时间
const shutdownTimeout = 30 * time.Second

// Server HTTP服务器的最小接口
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例，持有配置、路由与服务器
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   Server
	stopChan chan os.Signal
	unbind   func()
}

var (
	instance *App
	appMutex sync.Mutex
)

// GetApp 获取应用单例
func GetApp() *App {
	appMutex.Lock()
	defer appMutex.Unlock()

	if instance == nil {
		instance = &App{stopChan: make(chan os.Signal, 1)}
	}
	return instance
}

// Initialize 按顺序初始化配置、日志、服务与路由
func Initialize(dataDir string) error {
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}
	cfg := config.GetCurrentConfig()

	a := GetApp()
	a.config = cfg

	if err := initLogger(cfg); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}
	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	a.router = router

	handler, err := api.NewHandlerFromContainer(di.GetContainer())
	if err != nil {
		return err
	}
	a.unbind = handler.BindEvents()

	a.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	return nil
}

// initLogger 日志写入按大小轮转的文件
func initLogger(cfg *config.AppConfig) error {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	return utils.InitLogger(utils.LogConfig{
		Level:      cfg.LogLevel,
		FilePath:   filepath.Join(cfg.LogDir, "studio.log"),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   true,
		Stdout:     cfg.DebugMode,
	})
}

// InitServices 按依赖顺序创建服务并注册到全局容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()
	logger := utils.GetLogger()

	if container.Has(api.ServiceStore) {
		logger.Warn("服务已初始化，跳过重复注册", nil)
		return nil
	}

	// 1. 基础设施
	metrics := utils.NewStudioMetrics(utils.GetMetricsCollector())
	container.Register(api.ServiceMetrics, metrics)
	tree.StaleHook = metrics.RecordStaleReference

	store := services.NewProjectStore()
	container.Register(api.ServiceStore, store)

	locks := services.NewLockManager()
	container.Register(api.ServiceLocks, locks)

	progress := services.NewProgressService()
	container.Register(api.ServiceProgress, progress)

	// 2. 生成服务，未配置密钥时为模拟模式
	ai := services.NewAIService(cfg, metrics)
	container.Register(api.ServiceAI, ai)

	// 3. 领域服务
	script := services.NewScriptService(store, ai, locks)
	container.Register(api.ServiceScript, script)

	assets := services.NewAssetService(store, ai)
	container.Register(api.ServiceAssets, assets)

	generation := services.NewGenerationService(store, ai, locks, progress, metrics, cfg.MaxBatchSize)
	container.Register(api.ServiceGeneration, generation)

	ledger := services.NewLedgerService(store, ai, progress)
	container.Register(api.ServiceLedger, ledger)

	workbench := services.NewWorkbenchService(store)
	container.Register(api.ServiceWorkbench, workbench)

	container.Register(api.ServiceExport, services.NewExportService(store))

	// 4. 实时推送与限流
	hub := api.NewWebSocketHub()
	container.Register(api.ServiceHub, hub)

	limiter := api.NewRateLimiter()
	container.Register(api.ServiceLimiter, limiter)

	// 5. 演示数据
	projects, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("加载种子数据失败: %w", err)
	}
	installed, err := seed.Install(store, projects)
	if err != nil {
		return fmt.Errorf("安装种子数据失败: %w", err)
	}
	logger.Info("种子项目已载入", map[string]interface{}{"projects": installed})

	// 6. 维护任务
	scheduler := services.NewSchedulerService()
	if err := scheduler.RegisterMaintenance(services.DefaultMaintenanceInterval, progress, locks, workbench); err != nil {
		return fmt.Errorf("注册维护任务失败: %w", err)
	}
	if err := scheduler.AddJob("ratelimit.cleanup", time.Minute, func() {
		limiter.Cleanup()
	}); err != nil {
		return err
	}
	if err := scheduler.AddJob("websocket.cleanup", time.Minute, func() {
		if n := hub.CleanupExpiredConnections(); n > 0 {
			logger.Info("已清理超时的WebSocket连接", map[string]interface{}{"removed": n})
		}
	}); err != nil {
		return err
	}
	scheduler.Start()
	container.Register(api.ServiceScheduler, scheduler)

	_, provider, state := ai.GetProviderStatus()
	logger.Info("服务初始化完成", map[string]interface{}{
		"provider": provider,
		"state":    state,
		"services": len(container.GetNames()),
	})
	return nil
}

// Run 启动服务器并阻塞到收到停止信号
func Run() error {
	a := GetApp()
	if a.server == nil {
		return fmt.Errorf("应用未初始化")
	}
	logger := utils.GetLogger()

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	logger.Info("服务器已启动", map[string]interface{}{"port": a.config.Port})

	select {
	case err := <-errChan:
		a.cleanup()
		return fmt.Errorf("启动服务器失败: %w", err)
	case sig := <-a.stopChan:
		logger.Info("正在关闭服务器", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(ctx)
	a.cleanup()
	if err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}
	return nil
}

// cleanup 停止后台任务，关闭连接与日志
func (a *App) cleanup() {
	if a.unbind != nil {
		a.unbind()
		a.unbind = nil
	}

	container := di.GetContainer()
	if scheduler, ok := di.Resolve[*services.SchedulerService](container, api.ServiceScheduler); ok {
		scheduler.Stop()
	}
	if hub, ok := di.Resolve[*api.WebSocketHub](container, api.ServiceHub); ok {
		hub.Shutdown()
	}
	if progress, ok := di.Resolve[*services.ProgressService](container, api.ServiceProgress); ok {
		progress.CancelAll()
	}
	if ai, ok := di.Resolve[*services.AIService](container, api.ServiceAI); ok {
		if err := ai.Close(); err != nil {
			utils.GetLogger().Warn("关闭生成服务客户端失败", map[string]interface{}{"error": err.Error()})
		}
	}

	container.Clear()
	utils.GetLogger().Info("应用资源已释放", nil)
	utils.CloseLogger()
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// Router 获取HTTP处理器
func (a *App) Router() http.Handler {
	return a.router
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 是否为调试模式
func IsDebugMode() bool {
	appMutex.Lock()
	defer appMutex.Unlock()

	return instance != nil && instance.config != nil && instance.config.DebugMode
}
