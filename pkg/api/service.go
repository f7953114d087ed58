package api

import (
	"context"

	"cleantrail/internal/config"
	"cleantrail/internal/logger"
	"cleantrail/internal/service"
	"cleantrail/internal/storage"
	"cleantrail/pkg/model"
)

type Service interface {
	Start(ctx context.Context) error
	Stop() error

	GetPrivacyScore(ctx context.Context) (model.ScoreEvent, error)
	GetTrackerStats(ctx context.Context) (model.TrackerStats, error)
	GetDeletionHistory(ctx context.Context) ([]model.DeletionHistoryEntry, error)

	SetTrackerBlocking(ctx context.Context, enabled bool) error
	SetProfile(ctx context.Context, key string) error
	ManualClear(ctx context.Context) (string, error)
	ReportFingerprint(ctx context.Context, hostname string)

	SubscribeScore(fn func(model.ScoreEvent))
	SubscribeProfile(fn func(model.ProfileEvent))
}

// NewService 创建并返回服务接口实现
func NewService(store storage.Store, collab service.Collaborators, cfg *config.Config, l logger.Logger) Service {
	return service.New(store, collab, cfg, l)
}
