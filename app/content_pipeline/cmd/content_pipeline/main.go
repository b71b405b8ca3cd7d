package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/engine"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/logger"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/metrics"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCMD()
	if err := root.ExecuteContext(ctx); err != nil {
		writeJSON(os.Stderr, errcode.ToPayload(err))
		stop()
		os.Exit(1)
	}
}

// globalFlags 所有子命令共用的参数
type globalFlags struct {
	confPath    string
	metricsAddr string
}

func rootCMD() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "content_pipeline",
		Short:         "SEO research, writing and brand-voice pipeline",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&g.confPath, "conf", "c", "configs/config.yaml", "config file path")
	root.PersistentFlags().StringVar(&g.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		researchCMD(g),
		writeCMD(g),
		brandCMD(g),
		refineCMD(g),
		saveCMD(g),
		articlesCMD(g),
		runCMD(g),
	)
	return root
}

// app 单次命令运行所需的组件
type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Log.Warnf("关闭资源失败: %v", err)
		}
	}
}

// setup 加载配置并初始化日志、指标、数据库与引擎
func setup(ctx context.Context, g *globalFlags) (*app, error) {
	cfg, err := config.LoadConfig(g.confPath)
	if err != nil {
		return nil, errcode.Validation("无法加载配置文件: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errcode.Validation("%v", err)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, errcode.Internal(err, "无法初始化日志")
	}

	a := &app{cfg: cfg}
	m := metrics.New()

	addr := g.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		a.closers = append(a.closers, serveMetrics(addr, m))
	}

	// 如果配置了数据库信息，则尝试连接，失败时只写文件
	var recorder engine.Recorder
	if cfg.DB.Host != "" {
		pg, err := storage.NewPostgres(ctx, cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 将仅保存文件。", err)
		} else {
			recorder = pg
			a.closers = append(a.closers, pg.Close)
			logger.Log.Info("已成功连接到数据库")
		}
	} else {
		logger.Log.Debug("未配置数据库信息，跳过数据库连接")
	}

	eng, err := engine.NewEngine(ctx, cfg, m, recorder)
	if err != nil {
		a.Close()
		return nil, errcode.Internal(err, "引擎初始化失败")
	}
	a.engine = eng
	a.closers = append(a.closers, eng.Close)
	return a, nil
}

func serveMetrics(addr string, m *metrics.Metrics) func() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Log.Infof("指标服务监听 %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("指标服务异常退出: %v", err)
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

// withApp 初始化组件后执行 fn，并把结果以 JSON 输出
func withApp(g *globalFlags, fn func(ctx context.Context, a *app) (any, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, g)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := fn(ctx, a)
		if err != nil {
			return err
		}
		writeJSON(cmd.OutOrStdout(), map[string]any{"status": "success", "result": out})
		return nil
	}
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "{\"status\": \"error\", \"message\": %q}\n", err.Error())
	}
}
