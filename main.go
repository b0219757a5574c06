package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rdf-hub/rdf-hub/internal/cache"
	"github.com/rdf-hub/rdf-hub/internal/config"
	"github.com/rdf-hub/rdf-hub/internal/convert"
	"github.com/rdf-hub/rdf-hub/internal/fetch"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/logging"
	"github.com/rdf-hub/rdf-hub/internal/proxy"
	"github.com/rdf-hub/rdf-hub/internal/resolve"
	"github.com/rdf-hub/rdf-hub/internal/server"
	"github.com/rdf-hub/rdf-hub/internal/server/routes"
	"github.com/rdf-hub/rdf-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	verbose     bool
	quiet       bool
	// flags 中显式传入的值会覆盖配置文件与环境变量。
	flags *pflag.FlagSet
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute 解析命令行并运行服务，返回退出码；参数错误返回 2。
func execute(args []string) int {
	code := 0
	cmd := newRootCommand(func(opts cliOptions) {
		code = run(opts)
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)
	if err := cmd.Execute(); err != nil {
		return 2
	}
	return code
}

func newRootCommand(runFn func(cliOptions)) *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "A caching RDF document proxy with on-the-fly format conversion.",
		Long: `rdf-hub serves RDF documents fetched from their origin URI in the
serialization the client asks for. Documents are cached on disk per source URI
and format; missing formats are produced by converting a cached or freshly
downloaded copy.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		Run: func(cmd *cobra.Command, args []string) {
			opts.flags = cmd.Flags()
			runFn(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "配置文件路径（可被 "+config.EnvConfigPath+" 指定）")
	flags.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	flags.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "输出 debug 级别日志")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "仅输出 warn 及以上级别日志")

	flags.String("addr", "", "监听地址（默认 127.0.0.1）")
	flags.Int("port", 0, "监听端口（默认 3000）")
	flags.String("cache-root", "", "缓存根目录")
	flags.String("prefer", "", "目标格式未缓存时的回退偏好：download|convert")
	flags.Duration("timeout", 0, "回源超时，例如 30s")
	flags.String("log-level", "", "日志级别")
	flags.String("log-file", "", "日志文件路径（为空时输出到 stdout）")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath, opts.flags)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global, verbosity(opts))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["converters"] = converterNames(cfg.EnabledConverters())
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动遵循“配置 → 磁盘缓存 → 回源/转换 → 决策引擎 → Fiber server”顺序，
	// 缓存根目录不可用时直接退出。
	registry := format.Builtin()
	store, err := cache.NewStore(cfg.Global.CachePath, registry)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	fetcher := fetch.NewFetcher(fetch.NewClient(), registry, logger, fetch.Options{
		MaxDocumentSize: cfg.Global.MaxDocumentSize,
	})
	chain := buildConverterChain(cfg, logger)

	engine, err := resolve.NewEngine(resolve.Options{
		Store:     store,
		Fetcher:   fetcher,
		Converter: chain,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建决策引擎失败: %v\n", err)
		return 1
	}

	handler, err := proxy.NewHandler(proxy.Options{
		Resolver: engine,
		Store:    store,
		Registry: registry,
		Settings: cfg.Global.Settings(),
		Logger:   logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "构建请求处理器失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen"] = cfg.Global.ListenAddr()
	fields["cache_path"] = cfg.Global.CachePath
	fields["preference"] = cfg.Global.Preference
	fields["upstream_timeout"] = cfg.Global.UpstreamTimeout.DurationValue().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, handler, registry, chain, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func verbosity(opts cliOptions) logging.Verbosity {
	switch {
	case opts.verbose:
		return logging.VerbosityVerbose
	case opts.quiet:
		return logging.VerbosityQuiet
	default:
		return logging.VerbosityDefault
	}
}

// buildConverterChain 组装转换链：内置 superset 直通在前，外部工具按配置顺序在后。
// 找不到可执行文件的工具仍加入链中以便诊断接口展示，但不会被选中。
func buildConverterChain(cfg *config.Config, logger *logrus.Logger) *convert.Chain {
	converters := []convert.Converter{convert.Superset{}}
	for _, conv := range cfg.EnabledConverters() {
		profile, ok := convert.Profiles[conv.Name]
		if !ok {
			continue
		}
		tool := convert.NewTool(profile, conv.Path)
		entry := logger.WithFields(logrus.Fields{
			"action":    "converter_probe",
			"converter": tool.Name(),
			"path":      tool.Path(),
		})
		if tool.Available() {
			entry.Info("converter available")
		} else {
			entry.Warn("converter executable not found")
		}
		converters = append(converters, tool)
	}
	return convert.NewChain(converters...)
}

func converterNames(convs []config.ConverterConfig) []string {
	names := make([]string, 0, len(convs))
	for _, conv := range convs {
		names = append(names, conv.Name)
	}
	return names
}

func startHTTPServer(cfg *config.Config, handler server.RequestHandler, registry format.Registry, chain *convert.Chain, logger *logrus.Logger) error {
	app, err := server.NewApp(server.AppOptions{
		Logger:  logger,
		Handler: handler,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticRoutes(app, registry, chain)

	addr := cfg.Global.ListenAddr()
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   addr,
	}).Info("Fiber 服务启动")

	if err := app.Listen(addr); err != nil {
		return listenError(err, cfg.Global.ListenPort)
	}
	return nil
}

// listenError 在特权端口监听失败时附加权限提示。
func listenError(err error, port int) error {
	if port < 1024 {
		return fmt.Errorf("%w (you might need root privileges to listen on port %d)", err, port)
	}
	return err
}
