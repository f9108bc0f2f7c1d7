// Command shade grades images on the GPU.
//
// Usage:
//
//	shade -i in.jpg -o out.png --brightness 0.1 --contrast 1.2
//	shade --config params.ini
//	shade --socket
//
// One-shot operations run in the order they appear on the command line.
// With --socket the request server is served on stdin and stdout until
// the client sends shutdown or closes the stream.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/config"

	// Register backends.
	_ "github.com/gogpu/shade/backend/software"
	_ "github.com/gogpu/shade/backend/wgpu"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type flags struct {
	socket      bool
	input       string
	output      string
	paramsPath  string
	settings    string
	listFormats bool
	verbose     bool
	backend     string
	clearCache  bool
	cacheInfo   bool
	noCache     bool
	depth8      bool
	pipeline    pipelineFlags
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "shade",
		Short:         "GPU-accelerated image processing and color grading tool",
		Version:       shade.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, &f)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&f.socket, "socket", false, "serve framed requests on stdin/stdout")
	fs.StringVarP(&f.input, "input", "i", "", "input image `file`")
	fs.StringVarP(&f.output, "output", "o", "", "output image `file` (defaults to the input)")
	fs.StringVar(&f.paramsPath, "config", "", "INI `file` with a [params] pipeline description")
	fs.StringVar(&f.settings, "settings", "", "settings `file` (yaml, toml, json or ini)")
	fs.BoolVar(&f.listFormats, "list-formats", false, "list supported image formats and exit")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output and print the pipeline")
	fs.StringVar(&f.backend, "backend", "", "GPU backend: wgpu or software (default first available)")
	fs.BoolVar(&f.clearCache, "clear-cache", false, "delete the decoded image cache")
	fs.BoolVar(&f.cacheInfo, "cache-info", false, "print the decoded image cache location and size")
	fs.BoolVar(&f.noCache, "no-cache", false, "do not read or write the decoded image cache")
	fs.BoolVar(&f.depth8, "depth8", false, "write 8-bit PNG and TIFF instead of 16-bit")
	f.pipeline.register(fs)
	return cmd
}

func run(cmd *cobra.Command, f *flags) error {
	cfg, err := config.Load(f.settings)
	if err != nil {
		return err
	}
	if f.verbose {
		cfg.Verbose = true
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	installLogger(cfg)

	switch {
	case f.listFormats:
		printFormats(cmd.OutOrStdout())
		return nil
	case f.socket:
		return serveSocket(cmd.Context(), cfg)
	}

	if f.clearCache || f.cacheInfo {
		if err := manageCache(cmd.ErrOrStderr(), cfg, f.clearCache, f.cacheInfo); err != nil {
			return err
		}
		if f.input == "" && f.paramsPath == "" {
			return nil
		}
	}

	job, err := buildJob(cmd, f)
	if err != nil {
		return err
	}
	if f.verbose && !cfg.Verbose {
		cfg.Verbose = true
		installLogger(cfg)
	}
	if cfg.Verbose {
		job.print(cmd.ErrOrStderr())
	}
	return runJob(cmd.Context(), cfg, job, !f.depth8)
}

// installLogger sends package logs to stderr; stdout carries frames in
// socket mode.
func installLogger(cfg *config.Config) {
	shade.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))
}
