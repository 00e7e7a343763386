package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/photo-studio-mcp/internal/config"
	"github.com/ironsheep/photo-studio-mcp/internal/editor"
	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
	"github.com/ironsheep/photo-studio-mcp/internal/logging"
	"github.com/ironsheep/photo-studio-mcp/internal/removal"
	"github.com/ironsheep/photo-studio-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and --help before flag parsing, as the MCP clients
	// that launch this binary expect.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("photo-studio-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	configPath := flag.String("config", os.Getenv("PHOTO_STUDIO_CONFIG"), "path to a TOML, YAML or JSON config file")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)
	logger.Debug("starting", "version", Version, "built", BuildTime, "commit", GitCommit, "removal", cfg.Removal.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(newServerOptions(cfg, logger))
	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newServerOptions(cfg *config.Config, logger *slog.Logger) server.Options {
	loader := imaging.NewLoader(imaging.LoaderOptions{
		Client:          &http.Client{Timeout: cfg.Limits.FetchTimeout.Std()},
		MaxSourceBytes:  cfg.Limits.MaxSourceBytes,
		MaxPixels:       cfg.Limits.MaxPixels,
		MaxCachedImages: cfg.Limits.MaxCachedImages,
	})

	var remover removal.Remover
	switch cfg.Removal.Mode {
	case config.RemovalCommand:
		remover = removal.NewCommandRemover(cfg.Removal.Command[0], cfg.Removal.Command[1:], logger)
	default:
		remover = removal.NewKeyColorRemover(cfg.Removal.Tolerance)
	}

	opts := editor.Options{
		Remover:        remover,
		RemovalTimeout: cfg.Removal.Timeout.Std(),
		Logger:         logger,
	}
	if cfg.Render.Seed != 0 {
		opts.NewRand = editor.SeededRand(cfg.Render.Seed)
	}

	return server.Options{
		Loader:      loader,
		Editor:      opts,
		MaxSessions: cfg.Limits.MaxSessions,
		Logger:      logger,
		Version:     Version,
	}
}

func printUsage() {
	fmt.Println("photo-studio-mcp - MCP server for product photo editing")
	fmt.Println()
	fmt.Println("Usage: photo-studio-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>  Config file (.toml, .yaml, .yml or .json)")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  PHOTO_STUDIO_CONFIG=<path>            Config file when --config is absent")
	fmt.Println("  PHOTO_STUDIO_LOG_LEVEL=debug          Log level (IMAGE_MCP_LOG_LEVEL also works)")
	fmt.Println("  PHOTO_STUDIO_LOG_FORMAT=json          Log format")
	fmt.Println("  PHOTO_STUDIO_REMOVAL_MODE=command     Background remover: keycolor or command")
	fmt.Println("  PHOTO_STUDIO_REMOVAL_COMMAND='rembg i' External remover program")
	fmt.Println()
	fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}
