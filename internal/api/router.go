// internal/api/router.go
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryboardStudio/internal/config"
	"github.com/Corphon/StoryboardStudio/internal/di"
	"github.com/Corphon/StoryboardStudio/internal/services"
	"github.com/Corphon/StoryboardStudio/internal/utils"
)

// 依赖注入容器中的服务名
const (
	ServiceStore      = "store"
	ServiceScript     = "script"
	ServiceAssets     = "assets"
	ServiceGeneration = "generation"
	ServiceLedger     = "ledger"
	ServiceWorkbench  = "workbench"
	ServiceExport     = "export"
	ServiceProgress   = "progress"
	ServiceAI         = "ai"
	ServiceScheduler  = "scheduler"
	ServiceMetrics    = "metrics"
	ServiceLocks      = "locks"
	ServiceHub        = "ws_hub"
	ServiceLimiter    = "rate_limiter"
)

func resolve[T any](container *di.Container, name, label string) (T, error) {
	service, ok := di.Resolve[T](container, name)
	if !ok {
		return service, fmt.Errorf("%s未正确初始化", label)
	}
	return service, nil
}

// NewHandlerFromContainer 从容器组装处理器，只获取服务，不创建
func NewHandlerFromContainer(container *di.Container) (*Handler, error) {
	h := &Handler{Response: NewResponseHelper()}
	var err error

	if h.Store, err = resolve[*services.ProjectStore](container, ServiceStore, "项目存储"); err != nil {
		return nil, err
	}
	if h.Script, err = resolve[*services.ScriptService](container, ServiceScript, "剧本服务"); err != nil {
		return nil, err
	}
	if h.Assets, err = resolve[*services.AssetService](container, ServiceAssets, "资产服务"); err != nil {
		return nil, err
	}
	if h.Generation, err = resolve[*services.GenerationService](container, ServiceGeneration, "生成服务"); err != nil {
		return nil, err
	}
	if h.Ledger, err = resolve[*services.LedgerService](container, ServiceLedger, "版本服务"); err != nil {
		return nil, err
	}
	if h.Workbench, err = resolve[*services.WorkbenchService](container, ServiceWorkbench, "工作台服务"); err != nil {
		return nil, err
	}
	if h.Export, err = resolve[*services.ExportService](container, ServiceExport, "导出服务"); err != nil {
		return nil, err
	}
	if h.Progress, err = resolve[*services.ProgressService](container, ServiceProgress, "进度服务"); err != nil {
		return nil, err
	}
	if h.AI, err = resolve[*services.AIService](container, ServiceAI, "AI服务"); err != nil {
		return nil, err
	}
	if h.Metrics, err = resolve[*utils.StudioMetrics](container, ServiceMetrics, "指标"); err != nil {
		return nil, err
	}
	if h.Hub, err = resolve[*WebSocketHub](container, ServiceHub, "WebSocket 中心"); err != nil {
		return nil, err
	}
	// 调度器可选
	h.Scheduler, _ = di.Resolve[*services.SchedulerService](container, ServiceScheduler)
	return h, nil
}

// SetupRouter 使用全局容器中的服务配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	container := di.GetContainer()
	handler, err := NewHandlerFromContainer(container)
	if err != nil {
		return nil, err
	}
	limiter, ok := di.Resolve[*RateLimiter](container, ServiceLimiter)
	if !ok {
		limiter = NewRateLimiter()
	}
	cfg := config.GetCurrentConfig()
	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewRouter(handler, cfg, limiter), nil
}

// NewRouter 注册全部路由
func NewRouter(handler *Handler, cfg *config.AppConfig, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.DebugMode {
		r.Use(gin.Logger())
	}
	r.Use(RequestIDMiddleware())
	r.Use(CORSMiddleware())
	r.Use(RequestLogger(handler.Metrics))

	// WebSocket
	r.GET("/ws/projects/:pid", handler.ProjectWebSocket)

	api := r.Group("/api")
	api.Use(RateLimitByIP(limiter, cfg.RateLimitPerMinute))
	{
		api.GET("/health", handler.Health)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/ws/status", handler.WebSocketStatus)

		// ===============================
		// 设置
		// ===============================
		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.UpdateSettings)

		// ===============================
		// 后台任务进度
		// ===============================
		api.GET("/progress/:jobID", handler.SubscribeProgress)
		api.POST("/cancel/:jobID", handler.CancelJob)

		// ===============================
		// 项目
		// ===============================
		api.GET("/projects", handler.ListProjects)
		api.POST("/projects", handler.CreateProject)

		project := api.Group("/projects/:pid")
		{
			project.GET("", handler.GetProject)

			assets := project.Group("/assets")
			{
				assets.GET("", handler.ListAssets)
				assets.POST("", handler.CreateAsset)
				assets.POST("/polish", handler.PolishAssetPrompt)
				assets.POST("/candidates", handler.GenerateAssetCandidates)
				assets.GET("/:aid", handler.GetAsset)
				assets.PUT("/:aid", handler.UpdateAsset)
				assets.POST("/:aid/sub-assets", handler.AddSubAsset)
				assets.DELETE("/:aid/sub-assets/:sid", handler.RemoveSubAsset)
			}

			wb := project.Group("/workbench")
			{
				wb.GET("", handler.GetSelection)
				wb.PUT("", handler.UpdateSelection)
				wb.GET("/view", handler.GetWorkbenchView)
				wb.POST("/generate", handler.GenerateSelected)
			}

			project.POST("/drafts", handler.CreateDraft)
			draft := project.Group("/drafts/:did")
			{
				draft.PUT("", handler.UpdateDraft)
				draft.DELETE("", handler.DeleteDraft)
				draft.POST("/breakdown", handler.BreakdownScript)
				draft.GET("/archives", handler.ListArchives)
				draft.POST("/episodes", handler.AddEpisode)

				episode := draft.Group("/episodes/:eid")
				{
					episode.PUT("", handler.UpdateEpisode)
					episode.POST("/split", handler.SplitEpisode)
					episode.GET("/export", handler.ExportEpisode)
					episode.POST("/scenes", handler.AddScene)

					scene := episode.Group("/scenes/:sid")
					{
						scene.DELETE("", handler.RemoveScene)
						scene.POST("/shots", handler.GenerateShots)
						scene.POST("/tasks", handler.AddTask)

						task := scene.Group("/tasks/:tid")
						{
							task.GET("", handler.GetTask)
							task.PATCH("", handler.UpdateTask)
							task.POST("/polish", handler.PolishTaskPrompt)
							task.GET("/references", handler.TaskReferences)
							task.POST("/references", handler.AddTaskReferences)
							task.DELETE("/references/:aid", handler.RemoveTaskReference)
							task.PUT("/slots/:slot", handler.SetTaskSlot)
							task.POST("/generate", handler.Generate)
							task.POST("/versions/:vid/favorite", handler.ToggleFavorite)
							task.POST("/versions/:vid/keyframe", handler.SetKeyframe)
							task.POST("/versions/:vid/restore", handler.RestoreVersion)
							task.POST("/capture", handler.CaptureFrame)
							task.POST("/extract-video", handler.ExtractVideo)
							task.GET("/compare", handler.CompareVersions)
						}
					}
				}
			}
		}
	}

	return r
}
