package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/api-cache/internal/cache"
	"github.com/any-hub/api-cache/internal/config"
	"github.com/any-hub/api-cache/internal/httpcache"
	"github.com/any-hub/api-cache/internal/janitor"
	"github.com/any-hub/api-cache/internal/logging"
	"github.com/any-hub/api-cache/internal/metrics"
	"github.com/any-hub/api-cache/internal/proxy"
	"github.com/any-hub/api-cache/internal/registry"
	"github.com/any-hub/api-cache/internal/server"
	"github.com/any-hub/api-cache/internal/server/routes"
	"github.com/any-hub/api-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["hosts"] = config.HostNames(cfg.Hosts)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 日志 → 磁盘缓存 → Host 注册表 → 缓存引擎 → 清理任务 → Fiber server，
	// 所有请求共享同一组 store 与 engine 实例。
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["hosts"] = config.HostNames(cfg.Hosts)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["caching_enabled"] = cfg.Global.CachingEnabled
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go rt.janitor.Run(ctx)

	if err := startHTTPServer(ctx, cfg, rt, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// runtime 持有进程生命周期内共享的组件。
type runtime struct {
	store    *cache.FileStore
	backups  *cache.FileStore
	registry *registry.Registry
	metrics  *metrics.Metrics
	engine   *httpcache.Engine
	janitor  *janitor.Janitor
}

func buildRuntime(cfg *config.Config, logger *logrus.Logger) (*runtime, error) {
	g := cfg.Global

	store, err := cache.NewFileStore(g.StoragePath, g.Domain, g.CacheTTL.DurationValue())
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}
	backups, err := cache.NewFileStore(g.StoragePath, g.BackupDomain(), g.BackupTTL.DurationValue())
	if err != nil {
		return nil, fmt.Errorf("初始化 backup 目录失败: %w", err)
	}

	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("构建 Host 注册表失败: %w", err)
	}

	m := metrics.New()
	opts := httpcache.DefaultOptions()
	opts.Enabled = g.CachingEnabled
	opts.Timeout = g.UpstreamTimeout.DurationValue()
	opts.StaleTTL = g.StaleBackupTTL.DurationValue()
	opts.Registry = reg
	opts.Store = store
	opts.Backups = cache.NewBuckets(backups)
	opts.Transport = server.NewUpstreamClient(cfg)
	opts.Logger = logger
	opts.Metrics = m
	opts.WriteBackups = g.WriteBackups

	engine, err := httpcache.New(opts)
	if err != nil {
		return nil, fmt.Errorf("构建缓存引擎失败: %w", err)
	}

	return &runtime{
		store:    store,
		backups:  backups,
		registry: reg,
		metrics:  m,
		engine:   engine,
		janitor:  janitor.New(g.PurgeInterval.DurationValue(), logger, m, store, backups),
	}, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet(version.Name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 API_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("API_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func newHTTPApp(cfg *config.Config, rt *runtime, logger *logrus.Logger) (*fiber.App, error) {
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   rt.registry,
		Proxy:      proxy.NewHandler(rt.engine, logger),
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnostics(app, routes.Options{
		Registry:       rt.registry,
		Stores:         []*cache.FileStore{rt.store, rt.backups},
		Metrics:        rt.metrics,
		Logger:         logger,
		CachingEnabled: cfg.Global.CachingEnabled,
	})
	return app, nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, rt *runtime, logger *logrus.Logger) error {
	app, err := newHTTPApp(cfg, rt, logger)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("Fiber 服务停止")
		_ = app.Shutdown()
	}()

	port := cfg.Global.ListenPort
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
