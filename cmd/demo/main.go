package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"cleantrail/internal/browser"
	"cleantrail/internal/config"
	"cleantrail/internal/logger"
	"cleantrail/internal/service"
	"cleantrail/internal/storage"
	"cleantrail/pkg/api"
	"cleantrail/pkg/model"
)

// logIndicator 把评分指示器输出到终端
type logIndicator struct{ log logger.Logger }

func (l logIndicator) SetBadge(text, color string) {
	l.log.Info("评分指示器更新", "letter", text, "color", color)
}

func main() {
	devtools := os.Getenv("DEVTOOLS_URL")
	if devtools == "" {
		devtools = "http://localhost:9222"
	}

	l := logger.New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	mgr := browser.NewManager(devtools, l)
	if err := mgr.Attach(ctx, 4); err != nil {
		fmt.Println("attach browser error:", err)
		return
	}
	defer mgr.Detach()

	store := storage.NewMemoryStore()
	svc := api.NewService(store, service.Collaborators{
		Engine:    mgr,
		Cookies:   mgr,
		Clearer:   mgr,
		Injector:  mgr,
		Usage:     mgr,
		Tabs:      mgr,
		Indicator: logIndicator{log: l},
	}, config.NewConfig(), l)

	svc.SubscribeScore(func(ev model.ScoreEvent) {
		fmt.Printf("score: %d (%s) trackers pending=%d blocked=%d\n",
			ev.RawScore, ev.Letter, ev.Trackers.Pending, ev.Trackers.Blocked)
	})
	svc.SubscribeProfile(func(ev model.ProfileEvent) {
		fmt.Println("profile:", ev.Profile, "source:", ev.Source)
	})

	if err := svc.Start(ctx); err != nil {
		fmt.Println("start engine error:", err)
		return
	}
	defer svc.Stop()

	fmt.Println("demo running against", devtools, "- browse around, Ctrl+C to exit")
	<-ctx.Done()
	time.Sleep(200 * time.Millisecond)
}
