package gui

import (
	"context"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"cleantrail/internal/browser"
	"cleantrail/internal/config"
	"cleantrail/internal/logger"
	"cleantrail/internal/service"
	"cleantrail/internal/storage"
	"cleantrail/pkg/api"
	"cleantrail/pkg/model"
)

// App 暴露给前端的方法集合
type App struct {
	ctx     context.Context
	log     logger.Logger
	cfg     *config.Config
	db      *storage.DB
	repo    *storage.StateRepo
	manager *browser.Manager
	service api.Service
}

// NewApp 创建 App 实例
func NewApp() *App {
	return &App{
		log: logger.NewDefault(slog.LevelInfo),
		cfg: config.NewConfig(),
	}
}

// Startup 由 Wails 在应用启动时调用
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
	db, err := storage.NewDB()
	if err != nil {
		a.log.Err(err, "打开状态数据库失败")
		return
	}
	a.db = db
	a.repo = storage.NewStateRepo(db)
}

// Shutdown 由 Wails 在应用关闭时调用
func (a *App) Shutdown(ctx context.Context) {
	if a.service != nil {
		_ = a.service.Stop()
	}
	if a.manager != nil {
		_ = a.manager.Detach()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// OperationResult 通用操作结果
type OperationResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ========== 连接管理 ==========

// Connect 连接 DevTools 端点并启动隐私保护引擎
func (a *App) Connect(devToolsURL string) OperationResult {
	if a.repo == nil {
		return OperationResult{Success: false, Error: "状态存储未初始化"}
	}
	mgr := browser.NewManager(devToolsURL, a.log)
	if err := mgr.Attach(a.ctx, 4); err != nil {
		return OperationResult{Success: false, Error: err.Error()}
	}
	a.manager = mgr
	a.service = api.NewService(a.repo, service.Collaborators{
		Engine:    mgr,
		Cookies:   mgr,
		Clearer:   mgr,
		Injector:  mgr,
		Usage:     mgr,
		Tabs:      mgr,
		Indicator: a,
	}, a.cfg, a.log)

	// 评分与配置变更通过 Wails 事件系统推送到前端
	a.service.SubscribeScore(func(ev model.ScoreEvent) {
		runtime.EventsEmit(a.ctx, "privacy-score-updated", ev)
	})
	a.service.SubscribeProfile(func(ev model.ProfileEvent) {
		runtime.EventsEmit(a.ctx, "profile-updated", ev)
	})

	if err := a.service.Start(a.ctx); err != nil {
		return OperationResult{Success: false, Error: err.Error()}
	}
	return OperationResult{Success: true}
}

// Disconnect 断开浏览器连接
func (a *App) Disconnect() OperationResult {
	if a.manager != nil {
		if err := a.manager.Detach(); err != nil {
			return OperationResult{Success: false, Error: err.Error()}
		}
		a.manager = nil
	}
	return OperationResult{Success: true}
}

// SetBadge 更新窗口内的紧凑评分指示器
func (a *App) SetBadge(text, color string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, "badge-updated", map[string]string{"text": text, "color": color})
}

// ========== 评分查询 ==========

// ScoreResult 评分查询结果
type ScoreResult struct {
	Score   model.ScoreEvent `json:"score"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
}

// GetPrivacyScore 获取当前隐私评分
func (a *App) GetPrivacyScore() ScoreResult {
	if a.service == nil {
		return ScoreResult{Success: false, Error: "引擎未启动"}
	}
	ev, err := a.service.GetPrivacyScore(a.ctx)
	if err != nil {
		return ScoreResult{Success: false, Error: err.Error()}
	}
	return ScoreResult{Score: ev, Success: true}
}

// TrackerStatsResult 跟踪器统计查询结果
type TrackerStatsResult struct {
	Stats   model.TrackerStats `json:"stats"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
}

// GetTrackerStats 获取跟踪器统计
func (a *App) GetTrackerStats() TrackerStatsResult {
	if a.service == nil {
		return TrackerStatsResult{Success: false, Error: "引擎未启动"}
	}
	stats, err := a.service.GetTrackerStats(a.ctx)
	if err != nil {
		return TrackerStatsResult{Success: false, Error: err.Error()}
	}
	return TrackerStatsResult{Stats: stats, Success: true}
}

// HistoryResult 清理历史查询结果
type HistoryResult struct {
	History []model.DeletionHistoryEntry `json:"history"`
	Success bool                         `json:"success"`
	Error   string                       `json:"error,omitempty"`
}

// GetDeletionHistory 获取清理历史
func (a *App) GetDeletionHistory() HistoryResult {
	if a.service == nil {
		return HistoryResult{Success: false, Error: "引擎未启动"}
	}
	history, err := a.service.GetDeletionHistory(a.ctx)
	if err != nil {
		return HistoryResult{Success: false, Error: err.Error()}
	}
	return HistoryResult{History: history, Success: true}
}

// ========== 控制命令 ==========

// SetTrackerBlocking 切换跟踪器拦截
func (a *App) SetTrackerBlocking(enabled bool) OperationResult {
	if a.service == nil {
		return OperationResult{Success: false, Error: "引擎未启动"}
	}
	if err := a.service.SetTrackerBlocking(a.ctx, enabled); err != nil {
		return OperationResult{Success: false, Error: err.Error()}
	}
	return OperationResult{Success: true}
}

// SetProfile 手动选择清理配置
func (a *App) SetProfile(key string) OperationResult {
	if a.service == nil {
		return OperationResult{Success: false, Error: "引擎未启动"}
	}
	if err := a.service.SetProfile(a.ctx, key); err != nil {
		return OperationResult{Success: false, Error: err.Error()}
	}
	return OperationResult{Success: true}
}

// ManualClearResult 手动清理结果
type ManualClearResult struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ManualClear 立即执行全局清理
func (a *App) ManualClear() ManualClearResult {
	if a.service == nil {
		return ManualClearResult{Success: false, Error: "引擎未启动"}
	}
	status, err := a.service.ManualClear(a.ctx)
	if err != nil {
		return ManualClearResult{Success: false, Error: err.Error()}
	}
	return ManualClearResult{Status: status, Success: true}
}
