package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"nextgoal/internal/api"
	"nextgoal/internal/classifier"
	"nextgoal/internal/pipeline"
	"nextgoal/internal/scheduler"
	"nextgoal/internal/scraper"
	"nextgoal/internal/storage"
	"nextgoal/internal/verifier"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server     ServerConfig      `yaml:"server"`
	Database   DatabaseConfig    `yaml:"database"`
	Pipeline   pipeline.Config   `yaml:"pipeline"`
	Classifier classifier.Config `yaml:"classifier"`
	Verifier   verifier.Config   `yaml:"verifier"`
	Scheduler  scheduler.Config  `yaml:"scheduler"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// runner 是 main 依赖的调度器能力。
type runner interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context)
}

// appDeps 汇集启动所需组件。
type appDeps struct {
	sched   runner
	handler http.Handler
}

func main() {
	once := flag.Bool("once", false, "run one scrape+verification cycle and exit")
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("load config error: %v", err)
		return
	}

	if *once {
		if err := runOnceManual(context.Background(), cfg, buildDeps); err != nil {
			log.Printf("manual run error: %v", err)
		}
		return
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		log.Printf("init error: %v", err)
		return
	}
	defer cleanup()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: deps.handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("listening on %s", addr)
	if err := runServer(ctx, srv, deps.sched, 5*time.Second); err != nil {
		log.Printf("server error: %v", err)
	}
}

// httpServer 抽象 http.Server 以便测试替换。
type httpServer interface {
	ListenAndServe() error
	Shutdown(context.Context) error
}

// runServer 同时运行 HTTP 服务与调度循环，上下文取消后优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched runner, shutdownTimeout time.Duration) error {
	go func() {
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildDeps 按配置装配存储、抓取、分类、验证与调度组件。
func buildDeps(cfg AppConfig) (appDeps, func(), error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "jobs.db"
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return appDeps{}, func() {}, err
	}
	cleanup := func() { _ = store.Close() }

	client := &http.Client{Timeout: 15 * time.Second}
	registry := scraper.NewDefaultRegistry(client, nil)

	if cfg.Classifier.Gemini.APIKey == "" {
		cfg.Classifier.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	clf := classifier.New(cfg.Classifier, nil, nil)

	pipe := pipeline.New(registry, store, clf, cfg.Pipeline, nil)
	verif := verifier.New(store, nil, cfg.Verifier, nil)
	sched := scheduler.NewScheduler(pipe, verif, cfg.Scheduler, nil)

	handler := api.NewHandler(store, pipe, verif, clf)

	return appDeps{sched: sched, handler: handler}, cleanup, nil
}

// runOnceManual 装配依赖并执行单次 抓取+验证，供 -once 模式使用。
func runOnceManual(ctx context.Context, cfg AppConfig, build func(AppConfig) (appDeps, func(), error)) error {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	deps.sched.RunOnce(ctx)
	return nil
}

func loadConfig() (AppConfig, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return AppConfig{}, nil
		}
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
