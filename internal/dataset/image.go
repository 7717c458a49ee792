package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// Channels is the number of colour channels kept per pixel.
const Channels = 3

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("dataset: empty image")

// FeatureSize is the flattened vector length produced for a size x size image.
func FeatureSize(size int) int {
	return size * size * Channels
}

// LoadImage reads the image at path and returns its feature vector.
func LoadImage(path string, size int) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return DecodeImage(raw, size)
}

// DecodeImage decodes raw as an RGB image, resizes it to size x size with
// nearest-neighbour sampling and returns the pixels as R,G,B triples scaled
// to [0,1], row by row.
func DecodeImage(raw []byte, size int) ([]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dataset: image size must be > 0 (got %d)", size)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	features := make([]float64, 0, FeatureSize(size))
	for i := 0; i < len(dst.Pix); i += 4 {
		features = append(features,
			float64(dst.Pix[i])/255,
			float64(dst.Pix[i+1])/255,
			float64(dst.Pix[i+2])/255,
		)
	}
	return features, nil
}
