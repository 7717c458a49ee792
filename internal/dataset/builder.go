package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Options configures how images are turned into a Dataset.
type Options struct {
	ImageSize  int
	NumWorkers int
}

func (o Options) withDefaults() Options {
	if o.ImageSize <= 0 {
		o.ImageSize = 150
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 1
	}
	return o
}

// Build loads every .jpg file under dir into a new Dataset. Samples keep
// the directory listing order regardless of how many workers decode them.
// The first read or decode failure aborts the build.
func Build(ctx context.Context, dir string, opts Options) (*Dataset, error) {
	names, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	return collect(ctx, opts, func(ctx context.Context, jobs chan<- imageJob) error {
		for id, name := range names {
			path := filepath.Join(dir, name)
			job := imageJob{
				id:   id,
				name: name,
				read: func() ([]byte, error) { return os.ReadFile(path) },
			}
			select {
			case <-ctx.Done():
				return nil
			case jobs <- job:
			}
		}
		return nil
	})
}

type imageJob struct {
	id   int
	name string
	read func() ([]byte, error)
}

type decoded struct {
	id       int
	features []float64
	label    int
}

// producer feeds jobs in order and returns when the source is exhausted.
type producer func(ctx context.Context, jobs chan<- imageJob) error

func collect(parent context.Context, opts Options, produce producer) (*Dataset, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan imageJob, opts.NumWorkers)
	results := make(chan decoded, opts.NumWorkers*2)
	errCh := make(chan error, opts.NumWorkers+1)

	go func() {
		defer close(jobs)
		if err := produce(ctx, jobs); err != nil {
			errCh <- err
			cancel()
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker(ctx, jobs, results, opts.ImageSize); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var pending []decoded
	for r := range results {
		pending = append(pending, r)
	}

	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].id < pending[j].id })
	ds := &Dataset{
		Features: make([][]float64, 0, len(pending)),
		Labels:   make([]int, 0, len(pending)),
	}
	for _, r := range pending {
		ds.Append(Sample{Features: r.features, Label: r.label})
	}
	return ds, nil
}

func worker(ctx context.Context, jobs <-chan imageJob, results chan<- decoded, size int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			raw, err := job.read()
			if err != nil {
				return fmt.Errorf("read %s: %w", job.name, err)
			}
			features, err := DecodeImage(raw, size)
			if err != nil {
				return fmt.Errorf("load %s: %w", job.name, err)
			}
			select {
			case <-ctx.Done():
				return nil
			case results <- decoded{id: job.id, features: features, label: LabelFor(job.name)}:
			}
		}
	}
}
