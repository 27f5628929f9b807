// Package main trains LeNet on MNIST, evaluates it, exports the predictor
// nets, reloads them and classifies one test image.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/lenet/internal/config"
	"github.com/born-ml/lenet/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	dataDir := flag.String("data", "", "Directory containing the LevelDB stores")
	trainDB := flag.String("train-db", "", "Training store (relative to -data)")
	testDB := flag.String("test-db", "", "Test store (relative to -data)")
	outDir := flag.String("out", "", "Directory for mnist_init_net.pb and mnist_predict_net.pb")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	steps := flag.Int("steps", 0, "Training steps per epoch")
	batch := flag.Int("batch", 0, "Training batch size")
	testIters := flag.Int("test-iters", 0, "Number of test batches")
	logEvery := flag.Int("log-every", 0, "Log every N steps")
	workers := flag.Int("workers", 0, "Kernel worker goroutines (0 = physical cores)")
	seed := flag.Uint64("seed", 0, "Seed for parameter initialization")
	lr := flag.Float64("lr", 0, "Base learning rate")
	momentum := flag.Float64("momentum", 0, "SGD momentum")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			logger.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	cfg.ApplyOverrides(config.Overrides{
		DataDir:    *dataDir,
		TrainDB:    *trainDB,
		TestDB:     *testDB,
		OutputDir:  *outDir,
		Epochs:     *epochs,
		StepsPerEp: *steps,
		TrainBatch: *batch,
		TestIters:  *testIters,
		LogEvery:   *logEvery,
		Workers:    *workers,
		Seed:       *seed,
		BaseLR:     *lr,
		Momentum:   *momentum,
	})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, logger, os.Stdout)
	_, err := p.Run(ctx)
	if cerr := p.Close(); cerr != nil {
		logger.Warn("close workspace", "err", cerr)
	}
	if err != nil {
		logger.Error("pipeline failed", "err", err)
		os.Exit(1)
	}
}
