package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
)

// BuildArchive loads every .jpg entry of the tar archive at archivePath
// into a new Dataset, in archive order. Labels come from the entry base
// name exactly as Build derives them from file names.
func BuildArchive(ctx context.Context, archivePath string, opts Options) (*Dataset, error) {
	return collect(ctx, opts, func(ctx context.Context, jobs chan<- imageJob) error {
		return streamArchive(ctx, archivePath, jobs)
	})
}

func streamArchive(ctx context.Context, archivePath string, jobs chan<- imageJob) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	id := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		name := path.Base(hdr.Name)
		if !IsImageName(name) {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("read image %s: %w", name, err)
		}

		job := imageJob{
			id:   id,
			name: name,
			read: func() ([]byte, error) { return data, nil },
		}
		id++
		select {
		case <-ctx.Done():
			return nil
		case jobs <- job:
		}
	}
}
