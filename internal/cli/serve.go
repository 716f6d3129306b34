package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"HexCollector-App/internal/handler"
	"HexCollector-App/internal/scheduler"
	"HexCollector-App/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand HTTP APIサーバーを起動するコマンド
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "収集APIサーバーを起動する",
		Long: `収集APIサーバーを起動します。
collection.schedule が設定されている場合は定期収集も行います。

Example:
  collector serve --config ./collector.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(parent context.Context, opts *RootOptions) error {
	cfg, l := opts.Config, opts.Logger

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer a.Close()

	collectionUseCase := usecase.NewCollectionUseCase(ctx, a.orchestrator, a.sink, a.region, cfg.Collection.Resolution, l)

	var s *scheduler.Scheduler
	if cfg.Collection.Schedule != "" {
		if s, err = scheduler.New(cfg.Collection.Schedule, collectionUseCase, l); err != nil {
			return err
		}
		s.Start()
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.NewCollectionHandler(collectionUseCase), l)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info().Str("addr", server.Addr).Str("region", a.region.Name).Msg("🚀 サーバーを起動しました")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		drainRuns(s, collectionUseCase, l)
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info().Msg("🛑 サーバーを停止しています")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := server.Shutdown(shutdownCtx)

	// 保存先を閉じる前に実行中のランの終了を待つ
	drainRuns(s, collectionUseCase, l)

	if shutdownErr != nil {
		return fmt.Errorf("サーバーの停止に失敗: %w", shutdownErr)
	}
	return nil
}

// drainRuns 定期実行を止め、バックグラウンドのランが終わるまで待つ
func drainRuns(s *scheduler.Scheduler, uc usecase.CollectionUseCase, l *log.Logger) {
	if s != nil {
		s.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := uc.Wait(ctx); err != nil {
		l.Warn().Err(err).Msg("⚠️ 実行中の収集処理の終了を待てませんでした")
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
