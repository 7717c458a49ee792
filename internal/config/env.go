package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables consulted by LoadEnv.
const (
	EnvImageDir   = "PASSPORT_IMAGE_DIR"
	EnvImageSize  = "PASSPORT_IMAGE_SIZE"
	EnvEpochs     = "PASSPORT_EPOCHS"
	EnvBatchSize  = "PASSPORT_BATCH_SIZE"
	EnvNumWorkers = "PASSPORT_NUM_WORKERS"
	EnvSeed       = "PASSPORT_SEED"
	EnvCheckpoint = "PASSPORT_CHECKPOINT"
)

// LoadEnv loads the given .env files into the process environment and
// returns the PASSPORT_* values as Overrides. With no files it tries ./.env
// and ignores its absence. Variables already set in the environment win.
func LoadEnv(files ...string) (Overrides, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Overrides{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Overrides{}, fmt.Errorf("load env files: %w", err)
	}
	return overridesFromEnv()
}

func overridesFromEnv() (Overrides, error) {
	var o Overrides
	var err error
	o.ImageDir = os.Getenv(EnvImageDir)
	o.Checkpoint = os.Getenv(EnvCheckpoint)
	if o.ImageSize, err = envInt(EnvImageSize); err != nil {
		return Overrides{}, err
	}
	if o.Epochs, err = envInt(EnvEpochs); err != nil {
		return Overrides{}, err
	}
	if o.BatchSize, err = envInt(EnvBatchSize); err != nil {
		return Overrides{}, err
	}
	if o.NumWorkers, err = envInt(EnvNumWorkers); err != nil {
		return Overrides{}, err
	}
	if v := os.Getenv(EnvSeed); v != "" {
		o.Seed, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Overrides{}, fmt.Errorf("%s: %w", EnvSeed, err)
		}
	}
	return o, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
