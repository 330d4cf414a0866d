package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/frameloop/internal/app"
	"github.com/vkngwrapper/frameloop/internal/config"
	"github.com/vkngwrapper/frameloop/internal/gpu"
	"github.com/vkngwrapper/frameloop/internal/renderer"
)

func init() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()
}

func main() {
	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger)
	if err != nil {
		attrs := []any{slog.String("error", err.Error())}
		if category := gpu.Category(err); category != nil {
			attrs = append(attrs, slog.String("category", category.Error()))
		}
		for _, hint := range errors.GetAllHints(err) {
			attrs = append(attrs, slog.String("hint", hint))
		}
		logger.Error("frameloop failed", attrs...)
		log.Fatalf("%+v\n", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if errors.Is(err, renderer.ErrClosed) {
		logger.Info("window closed before the first frame")
		return nil
	}
	if err != nil {
		return err
	}
	defer a.Destroy()

	return a.Run(ctx)
}
