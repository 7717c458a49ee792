package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"passport-classifier/internal/config"
	"passport-classifier/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config")
	envFile := flag.String("env", "", "Path to a .env file (default ./.env if present)")
	imageDir := flag.String("image-dir", "", "Directory (or .tar archive) of .jpg images")
	imageSize := flag.Int("image-size", 0, "Square size images are resized to")
	epochs := flag.Int("epochs", 0, "Number of training epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	numWorkers := flag.Int("workers", 0, "Number of image decoding workers")
	seed := flag.Int64("seed", 0, "PRNG seed (0 seeds from the clock)")
	checkpointPath := flag.String("checkpoint", "", "Write the trained model to this path")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	envOverrides, err := config.LoadEnv(envFiles...)
	if err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}
	cfg.ApplyOverrides(envOverrides)

	cfg.ApplyOverrides(config.Overrides{
		ImageDir:   *imageDir,
		ImageSize:  *imageSize,
		Epochs:     *epochs,
		BatchSize:  *batchSize,
		NumWorkers: *numWorkers,
		Seed:       *seed,
		Checkpoint: *checkpointPath,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		ImageDir:        cfg.ImageDir,
		ImageSize:       cfg.ImageSize,
		HiddenUnits:     cfg.HiddenUnits,
		Epochs:          cfg.Epochs,
		BatchSize:       cfg.BatchSize,
		ValidationSplit: cfg.ValidationSplit,
		LearningRate:    cfg.LearningRate,
		NumWorkers:      cfg.NumWorkers,
		Seed:            cfg.Seed,
		Checkpoint:      cfg.Checkpoint,
	}

	if _, err := trainer.Run(ctx, runCfg); err != nil {
		log.Fatalf("training failed: %v", err)
	}
}
