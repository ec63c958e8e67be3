package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/internal/protocol/static"
	"github.com/marmos91/dittoweb/pkg/config"
	"github.com/marmos91/dittoweb/pkg/server"
)

const usage = `dittoweb - static file server with pluggable concurrency

Usage:
  dittoweb [flags]          start the server
  dittoweb init [flags]     write a sample configuration file

Flags:
`

// cliFlags holds the command-line values. Only flags the user actually set
// override the loaded configuration.
type cliFlags struct {
	configPath  string
	port        int
	folder      string
	concurrency string
	delay       bool
	verbose     bool
	workers     int
}

func newFlagSet(f *cliFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("dittoweb", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	fs.StringVar(&f.configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittoweb/config.yaml)")

	fs.IntVar(&f.port, "port", config.DefaultPort, "Port to listen on")
	fs.IntVar(&f.port, "p", config.DefaultPort, "Port to listen on (shorthand)")

	fs.StringVar(&f.folder, "folder", config.DefaultContentPath, "Folder to serve files from")
	fs.StringVar(&f.folder, "f", config.DefaultContentPath, "Folder to serve files from (shorthand)")

	fs.StringVar(&f.concurrency, "concurrency", "thread", "Concurrency mode: thread, thread-pool or async")
	fs.StringVar(&f.concurrency, "c", "thread", "Concurrency mode (shorthand)")

	fs.BoolVar(&f.delay, "delay", false, "Pause before answering each request")
	fs.BoolVar(&f.delay, "d", false, "Pause before answering each request (shorthand)")

	fs.BoolVar(&f.verbose, "verbose", false, "Log at DEBUG level")
	fs.BoolVar(&f.verbose, "v", false, "Log at DEBUG level (shorthand)")

	fs.IntVar(&f.workers, "workers", 10, "Worker count in thread-pool mode")

	return fs
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, f *cliFlags) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port", "p":
			cfg.Server.Port = f.port
		case "folder", "f":
			cfg.Content.Type = "filesystem"
			if cfg.Content.Filesystem == nil {
				cfg.Content.Filesystem = make(map[string]any)
			}
			cfg.Content.Filesystem["path"] = f.folder
		case "concurrency", "c":
			cfg.Server.Concurrency = f.concurrency
		case "delay", "d":
			cfg.Server.Delay = f.delay
		case "verbose", "v":
			if f.verbose {
				cfg.Logging.Level = "DEBUG"
			}
		case "workers":
			cfg.Server.Workers = f.workers
		}
	})
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}

	var f cliFlags
	fs := newFlagSet(&f)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg, fs, &f)
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(cfg))
}

// run builds the server from cfg and serves until a signal or a fatal error.
// Returns the process exit code.
func run(cfg *config.Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("dittoweb - static file server")
	logConfig(cfg)

	metricsResult := config.InitializeMetrics(cfg)

	store, err := config.CreateContentStore(ctx, &cfg.Content, metricsResult.S3)
	if err != nil {
		logger.Error("Failed to create content store: %v", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	handler, err := static.NewHandler(ctx, store, config.HandlerOptions(cfg, metricsResult.FileServer))
	if err != nil {
		logger.Error("Failed to create request handler: %v", err)
		return 1
	}
	defer func() { _ = handler.Close() }()

	a, err := config.CreateAdapter(cfg, metricsResult.FileServer)
	if err != nil {
		logger.Error("Failed to create %s adapter: %v", cfg.Server.Concurrency, err)
		return 1
	}

	srv := server.New(handler, a)
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-a.Ready():
			logger.Info("Server is running on port %d. Press Ctrl+C to stop.", a.Port())
		case <-ctx.Done():
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			return 1
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			return 1
		}
		logger.Info("Server stopped")
	}

	return 0
}

func logConfig(cfg *config.Config) {
	s := cfg.Server
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Server configuration:")
	logger.Info("  Port: %d", s.Port)
	logger.Info("  Concurrency: %s", s.Concurrency)
	if s.Concurrency == "thread-pool" {
		logger.Info("  Workers: %d", s.Workers)
	}
	if s.Delay {
		logger.Info("  Delay: %v per request", s.DelayDuration)
	} else {
		logger.Info("  Delay: off")
	}
	logger.Info("  Chunk size: %d bytes", s.ChunkSize)
	if s.MaxRequestSize > 0 {
		logger.Info("  Max request size: %d bytes", s.MaxRequestSize)
	} else {
		logger.Info("  Max request size: unlimited")
	}
	logger.Info("  Shutdown timeout: %v", s.ShutdownTimeout)
	if s.AcceptRate > 0 {
		logger.Info("  Accept rate: %d/s (burst %d)", s.AcceptRate, s.AcceptBurst)
	}
	if s.Metrics.Enabled {
		logger.Info("  Metrics: enabled on port %d", s.Metrics.Port)
	}
	logger.Info("Content: %s (default document %s, 404 page %s)",
		cfg.Content.Type, cfg.Content.DefaultDocument, cfg.Content.NotFoundPage)
}

// runInit implements "dittoweb init".
func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "", "Where to write the file (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing file")
	_ = fs.Parse(args)

	var err error
	written := *path
	if written == "" {
		written, err = config.InitConfig(*force)
	} else {
		err = config.InitConfigToPath(written, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", written)
	return 0
}
