package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/backend"
	"github.com/gogpu/shade/codec"
	"github.com/gogpu/shade/config"
	"github.com/gogpu/shade/executor"
	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/graph"
	"github.com/gogpu/shade/internal/diskcache"
	"github.com/gogpu/shade/protocol"
	"github.com/gogpu/shade/server"
)

// buildJob resolves the input, output and operations. A --config file
// replaces the operation flags; -i and -o override its paths.
func buildJob(cmd *cobra.Command, f *flags) (job, error) {
	j := job{input: f.input, output: f.output, ops: f.pipeline.Operations()}
	if f.paramsPath != "" {
		p, err := config.LoadParams(f.paramsPath)
		if err != nil {
			return job{}, err
		}
		shade.Logger().Info("loaded pipeline", "path", f.paramsPath, "operations", len(p.Operations))
		j.ops = p.Operations
		if j.input == "" {
			j.input = p.InputPath
		}
		if j.output == "" {
			j.output = p.OutputPath
		}
		if p.Verbose && !cmd.Flags().Changed("verbose") {
			f.verbose = true
		}
	}
	if j.input == "" {
		return job{}, errors.New("no input image: pass -i or set input_path with --config")
	}
	if _, err := os.Stat(j.input); err != nil {
		return job{}, fmt.Errorf("input file does not exist: %s", j.input)
	}
	if in, err := codec.FormatFromPath(j.input); err == nil && !in.CanDecode() {
		return job{}, fmt.Errorf("unsupported input format: %s (supported: %s)",
			j.input, strings.Join(codec.InputFormats(), ", "))
	}
	if j.output == "" {
		j.output = j.input
	}
	out, err := codec.FormatFromPath(j.output)
	if err != nil || !out.CanEncode() {
		return job{}, fmt.Errorf("unsupported output format: %s (supported: %s)",
			j.output, strings.Join(codec.OutputFormats(), ", "))
	}
	return j, nil
}

func openAdapter(cfg *config.Config) (gpucore.GPUAdapter, string, error) {
	if cfg.Backend != "" {
		a, err := backend.Open(cfg.Backend)
		return a, cfg.Backend, err
	}
	return backend.OpenDefault()
}

func executorOptions(cfg *config.Config) []executor.Option {
	opts := []executor.Option{executor.WithMaxTileEdge(cfg.Executor.MaxTileEdge)}
	if cfg.Executor.SPIRV {
		opts = append(opts, executor.WithSPIRV())
	}
	return opts
}

func openCache(cfg *config.Config) (*diskcache.Cache, error) {
	dir := cfg.Cache.Dir
	if dir == "" {
		dir = diskcache.DefaultDir()
	}
	return diskcache.Open(dir)
}

func runJob(ctx context.Context, cfg *config.Config, j job, depth16 bool) error {
	log := shade.Logger()
	start := time.Now()

	data, err := os.ReadFile(j.input)
	if err != nil {
		return err
	}

	var cache *diskcache.Cache
	if cfg.Cache.Enabled {
		if cache, err = openCache(cfg); err != nil {
			log.Warn("decoded image cache unavailable", "err", err)
		} else if n, err := cache.Prune(cfg.Cache.MaxAge); err != nil {
			log.Warn("pruning decoded image cache", "err", err)
		} else if n > 0 {
			log.Debug("pruned decoded image cache", "removed", n)
		}
	}
	img, err := decodeCached(cache, data, j.input)
	if err != nil {
		return fmt.Errorf("load %s: %w", j.input, err)
	}
	loaded := time.Since(start)

	if err := ctx.Err(); err != nil {
		return err
	}
	adapter, name, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			log.Warn("closing adapter", "err", err)
		}
	}()
	exec := executor.New(adapter, executorOptions(cfg)...)
	defer exec.Close()
	if err := exec.Init(); err != nil {
		return err
	}
	setup := time.Since(start)

	g, err := graph.BuildChain(j.ops)
	if err != nil {
		return err
	}
	out, err := exec.Process(g, img)
	if err != nil {
		return err
	}
	processed := time.Since(start)

	if err := writeImage(j.output, out, depth16); err != nil {
		return err
	}
	log.Info("image written",
		"path", j.output, "width", out.Width, "height", out.Height, "backend", name,
		"load", loaded, "setup", setup-loaded, "process", processed-setup, "total", time.Since(start))
	return nil
}

func decodeCached(cache *diskcache.Cache, data []byte, path string) (executor.Image, error) {
	if cache == nil {
		return codec.Decode(data, path)
	}
	key := diskcache.Key(data, "")
	if img, ok := cache.Load(key); ok {
		shade.Logger().Debug("using cached decoded image", "key", key)
		return img, nil
	}
	img, err := codec.Decode(data, path)
	if err != nil {
		return executor.Image{}, err
	}
	if err := cache.Save(key, img); err != nil {
		shade.Logger().Warn("caching decoded image", "err", err)
	}
	return img, nil
}

func writeImage(path string, img executor.Image, depth16 bool) (err error) {
	format, err := codec.FormatFromPath(path)
	if err != nil {
		return err
	}
	var opts []codec.EncodeOption
	if depth16 {
		opts = append(opts, codec.WithDepth16())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return codec.Encode(f, img, format, opts...)
}

func serveSocket(ctx context.Context, cfg *config.Config) error {
	opts := []server.Option{
		server.WithOpener(func() (gpucore.GPUAdapter, string, error) { return openAdapter(cfg) }),
		server.WithAttachmentCapacity(cfg.Server.AttachmentCapacity),
		server.WithExecutorOptions(executorOptions(cfg)...),
	}
	if cfg.Server.Depth16 {
		opts = append(opts, server.WithDepth16())
	}
	if cfg.Cache.Enabled {
		if cache, err := openCache(cfg); err != nil {
			shade.Logger().Warn("decoded image cache unavailable", "err", err)
		} else {
			opts = append(opts, server.WithDiskCache(cache))
		}
	}
	srv := server.New(opts...)
	t := protocol.NewTransport(os.Stdin, os.Stdout, protocol.WithMaxPayload(cfg.Server.MaxPayload))
	return srv.Serve(ctx, t)
}

func manageCache(w io.Writer, cfg *config.Config, doClear, info bool) error {
	cache, err := openCache(cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if doClear {
		if err := cache.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintln(w, "Cache cleared successfully")
	}
	if info {
		size, err := cache.Size()
		if err != nil {
			return fmt.Errorf("cache size: %w", err)
		}
		n, err := cache.Len()
		if err != nil {
			return fmt.Errorf("cache entries: %w", err)
		}
		fmt.Fprintf(w, "Cache location: %s\n", cache.Dir())
		fmt.Fprintf(w, "Cache size: %.2f MB (%d bytes, %d entries)\n", float64(size)/(1024*1024), size, n)
	}
	return nil
}

func printFormats(w io.Writer) {
	fmt.Fprintln(w, "Supported input formats:")
	fmt.Fprintf(w, "  %s\n", strings.Join(codec.InputFormats(), ", "))
	fmt.Fprintln(w, "Supported output formats:")
	fmt.Fprintf(w, "  %s\n", strings.Join(codec.OutputFormats(), ", "))
	fmt.Fprintln(w, "Backends:")
	fmt.Fprintf(w, "  %s\n", strings.Join(backend.Available(), ", "))
}
