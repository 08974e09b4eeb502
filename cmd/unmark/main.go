// Command unmark keeps Zhihu pages showing unwatermarked images.
//
// Usage:
//
//	unmark -config unmark.yaml                    # watch pages from YAML config
//	unmark -url https://www.zhihu.com/question/1  # watch a single page (stdout sink)
//	unmark -file page.html -format markdown       # rewrite a saved page and exit
//	unmark -addr :8087 -db unmark.db              # HTTP API over the rewrite ledger
//	unmark -mcp                                   # MCP tools on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/unmark"
	"github.com/hazyhaar/unmark/idgen"
	"github.com/hazyhaar/unmark/internal/config"
	"github.com/hazyhaar/unmark/server"
)

const version = "0.1.0"

type options struct {
	configPath string
	singleURL  string
	file       string
	out        string
	format     string
	sanitize   bool
	addr       string
	db         string
	mcp        bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to unmark.yaml config file")
	flag.StringVar(&o.singleURL, "url", "", "watch a single URL (stdout sink)")
	flag.StringVar(&o.file, "file", "", "rewrite a saved HTML file and exit (- for stdin)")
	flag.StringVar(&o.out, "out", "", "output path for -file (default stdout)")
	flag.StringVar(&o.format, "format", "html", "output format for -file: html, markdown")
	flag.BoolVar(&o.sanitize, "sanitize", false, "strip scripts and unsafe markup from -file input")
	flag.StringVar(&o.addr, "addr", "", "HTTP API listen address")
	flag.StringVar(&o.db, "db", "", "SQLite rewrite ledger path")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdio")
	envFile := flag.String("env", ".env", "dotenv file loaded before configuration")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	if err := unmark.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "unmark: load %s: %v\n", *envFile, err)
	}
	if *logLevel == "" {
		*logLevel = os.Getenv(config.EnvLogLevel)
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("unmark: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	if o.file != "" {
		return runFile(logger, o)
	}

	cfg := unmark.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = unmark.LoadConfigFile(o.configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	cfg.ApplyEnv()
	if o.db != "" {
		cfg.Store.Path = o.db
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.singleURL != "" {
		cfg.Pages = append(cfg.Pages, unmark.PageConfig{ID: idgen.New(), URL: o.singleURL})
	}

	if len(cfg.Pages) == 0 && cfg.Server.Addr == "" && !o.mcp {
		fmt.Fprintln(os.Stderr, "usage: unmark -config <file> | -url <url> | -file <html> | -addr <addr> | -mcp")
		os.Exit(2)
	}

	// Stdout carries the MCP protocol in -mcp mode.
	var sinks []unmark.Sink
	if o.mcp {
		for _, sc := range cfg.Sinks {
			if sc.Type == "webhook" {
				sinks = append(sinks, unmark.NewWebhookSink(sc.URL, logger))
			}
		}
	} else {
		sinks = unmark.SinksFromConfig(cfg, logger)
	}

	srvCfg := server.Config{Rewrite: cfg.RewriterConfig(), Logger: logger}

	if cfg.Store.Path != "" {
		ledger, err := unmark.OpenStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer ledger.Close()
		sinks = append(sinks, ledger)
		srvCfg.Ledger = ledger
		logger.Info("unmark: ledger open", "path", cfg.Store.Path)
	}

	if len(cfg.Pages) > 0 {
		d, err := unmark.New(cfg, logger, sinks...)
		if err != nil {
			return err
		}
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		defer d.Stop()
		srvCfg.Pages = d
	}

	srv := server.New(srvCfg)

	if cfg.Server.Addr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("unmark: http listening", "addr", cfg.Server.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("unmark: http server", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutCtx)
		}()
	}

	if o.mcp {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "unmark", Version: version}, nil)
		srv.RegisterMCP(mcpSrv)
		logger.Info("unmark: mcp on stdio")
		if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

func runFile(logger *slog.Logger, o options) error {
	var in io.Reader = os.Stdin
	if o.file != "-" {
		f, err := os.Open(o.file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", o.file, err)
	}

	cfg := unmark.DefaultConfig()
	if o.configPath != "" {
		if cfg, err = unmark.LoadConfigFile(o.configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	rcfg := cfg.RewriterConfig()

	doc := string(data)
	if o.sanitize {
		doc = unmark.Sanitize(doc, rcfg)
	}
	out, n, err := unmark.RewriteHTMLString(doc, rcfg)
	if err != nil {
		return err
	}
	switch o.format {
	case "html", "":
	case "markdown":
		if out, err = unmark.RenderMarkdown(out, ""); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}

	w := io.Writer(os.Stdout)
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if _, err := io.WriteString(w, out); err != nil {
		return err
	}
	logger.Info("unmark: file rewritten", "file", o.file, "rewritten", n, "format", o.format)
	return nil
}
