// Package main 标书生成命令行工具：初始化目录、生成提纲、生成正文
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"z-bid-writer/internal/application/bidding"
	"z-bid-writer/internal/config"
	einoobs "z-bid-writer/internal/observability/eino"
	"z-bid-writer/internal/wire"
	apperrors "z-bid-writer/pkg/errors"
	"z-bid-writer/pkg/logger"
	"z-bid-writer/pkg/tracer"
)

const usage = `usage: bid-gen <command> [flags]

commands:
  init       create the input/output directory layout
  outline    generate the outline from the input documents
  document   generate the document from the saved outline
  run        generate the outline, then the document

flags:
`

type options struct {
	command   string
	configDir string
	fresh     bool
}

func parseArgs(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("bid-gen", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configDir, "config-dir", "c", "configs", "directory holding config.yaml")
	fs.BoolVar(&opts.fresh, "fresh", false, "ignore cached sub-section content")
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, errors.New("exactly one command is required")
	}

	opts.command = fs.Arg(0)
	switch opts.command {
	case "init", "outline", "document", "run":
		return opts, nil
	default:
		fs.Usage()
		return opts, fmt.Errorf("unknown command %q", opts.command)
	}
}

func main() {
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadFrom(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	einoobs.Init()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		logger.Error(ctx, "command failed", err, "command", opts.command)
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", opts.command, err)
		stop()
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	app, cleanup, err := wire.InitializeCLI(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := app.Service
	runOpts := bidding.RunOptions{Fresh: opts.fresh}

	switch opts.command {
	case "init":
		created, err := app.Store.Init(ctx)
		if err != nil {
			return err
		}
		for _, path := range created {
			fmt.Fprintf(out, "created %s\n", path)
		}
		fmt.Fprintf(out, "fill in %s and %s, then run: bid-gen run\n",
			filepath.Join(cfg.Storage.InputDir, "tech.md"), filepath.Join(cfg.Storage.InputDir, "score.md"))
		return nil

	case "outline":
		res, err := svc.GenerateOutline(ctx)
		if err != nil {
			return err
		}
		counts := res.Outline.Counts()
		fmt.Fprintf(out, "outline saved: %d chapters, %d sections, %d sub-sections\n",
			counts.Chapters, counts.Sections, counts.SubSections)
		return nil

	case "document":
		res, err := svc.GenerateDocument(ctx, runOpts)
		if err != nil {
			return err
		}
		printDocument(out, res, app.Store.DocumentPath())
		return nil

	case "run":
		res, err := svc.Run(ctx, runOpts)
		if err != nil {
			return err
		}
		printDocument(out, res.Document, app.Store.DocumentPath())
		return nil
	}
	return fmt.Errorf("unknown command %q", opts.command)
}

func printDocument(out io.Writer, res *bidding.DocumentResult, path string) {
	fmt.Fprintf(out, "document saved to %s: %d/%d sub-sections generated in %s\n",
		path, res.Succeeded, res.Total, res.Elapsed)
	for _, title := range res.Failed {
		fmt.Fprintf(out, "  needs manual completion: %s\n", title)
	}
}

// exitCode 输入问题返回 2，其余失败返回 1
func exitCode(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInputMissing, apperrors.CodeEmptyInput, apperrors.CodeOutlineNotFound:
		return 2
	default:
		return 1
	}
}
