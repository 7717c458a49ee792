// Package checkpoint persists a trained classifier as a protobuf Struct.
package checkpoint

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"passport-classifier/internal/metrics"
	"passport-classifier/internal/model"
)

const formatVersion = 1

// ErrCorrupt indicates the checkpoint could not be interpreted.
var ErrCorrupt = errors.New("checkpoint: corrupt file")

// Meta describes the run that produced a checkpoint.
type Meta struct {
	RunID     uuid.UUID
	CreatedAt time.Time
	ImageSize int
	Labels    []string
	Final     metrics.EpochLogs
}

// Write stores the weights of m and meta at path. The file is replaced
// atomically.
func Write(path string, m *model.Sequential, meta Meta) error {
	layers := make([]any, 0, len(m.Layers()))
	for _, layer := range m.Layers() {
		layers = append(layers, map[string]any{
			"input_size": layer.InputSize,
			"units":      layer.Units,
			"activation": string(layer.Activation),
			"weights":    encodeFloats(layer.Weights.RawMatrix().Data),
			"bias":       encodeFloats(layer.Bias.RawVector().Data),
		})
	}
	labels := make([]any, len(meta.Labels))
	for i, l := range meta.Labels {
		labels[i] = l
	}
	final := make(map[string]any)
	for k, v := range meta.Final.Map() {
		final[k] = v
	}

	doc, err := structpb.NewStruct(map[string]any{
		"version":    formatVersion,
		"run_id":     meta.RunID.String(),
		"created_at": meta.CreatedAt.UTC().Format(time.RFC3339),
		"image_size": meta.ImageSize,
		"labels":     labels,
		"final":      final,
		"layers":     layers,
	})
	if err != nil {
		return fmt.Errorf("checkpoint: build document: %w", err)
	}
	data, err := proto.Marshal(doc)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

// Read restores a model and its metadata from path. The returned model is
// not compiled; it is ready for Predict.
func Read(path string) (*model.Sequential, Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: read: %w", err)
	}
	doc := &structpb.Struct{}
	if err := proto.Unmarshal(data, doc); err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	fields := doc.GetFields()
	if v := fields["version"].GetNumberValue(); v != formatVersion {
		return nil, Meta{}, fmt.Errorf("%w: unsupported version %v", ErrCorrupt, v)
	}

	var meta Meta
	if meta.RunID, err = uuid.Parse(fields["run_id"].GetStringValue()); err != nil {
		return nil, Meta{}, fmt.Errorf("%w: run_id: %v", ErrCorrupt, err)
	}
	if meta.CreatedAt, err = time.Parse(time.RFC3339, fields["created_at"].GetStringValue()); err != nil {
		return nil, Meta{}, fmt.Errorf("%w: created_at: %v", ErrCorrupt, err)
	}
	meta.ImageSize = int(fields["image_size"].GetNumberValue())
	for _, l := range fields["labels"].GetListValue().GetValues() {
		meta.Labels = append(meta.Labels, l.GetStringValue())
	}
	final := fields["final"].GetStructValue().GetFields()
	meta.Final.Loss = final["loss"].GetNumberValue()
	meta.Final.Acc = final["acc"].GetNumberValue()
	if v, ok := final["val_loss"]; ok {
		meta.Final.HasValidation = true
		meta.Final.ValLoss = v.GetNumberValue()
		meta.Final.ValAcc = final["val_acc"].GetNumberValue()
	}

	m := model.NewSequential(0)
	for i, lv := range fields["layers"].GetListValue().GetValues() {
		lf := lv.GetStructValue().GetFields()
		cfg := model.DenseConfig{
			InputShape: int(lf["input_size"].GetNumberValue()),
			Units:      int(lf["units"].GetNumberValue()),
			Activation: model.Activation(lf["activation"].GetStringValue()),
		}
		if err := m.Add(cfg); err != nil {
			return nil, Meta{}, fmt.Errorf("%w: layer %d: %v", ErrCorrupt, i, err)
		}
		layer := m.Layers()[i]
		if err := decodeFloats(lf["weights"].GetStringValue(), layer.Weights.RawMatrix().Data); err != nil {
			return nil, Meta{}, fmt.Errorf("%w: layer %d weights: %v", ErrCorrupt, i, err)
		}
		if err := decodeFloats(lf["bias"].GetStringValue(), layer.Bias.RawVector().Data); err != nil {
			return nil, Meta{}, fmt.Errorf("%w: layer %d bias: %v", ErrCorrupt, i, err)
		}
	}
	if len(m.Layers()) == 0 {
		return nil, Meta{}, fmt.Errorf("%w: no layers", ErrCorrupt)
	}
	return m, meta, nil
}

// encodeFloats packs values as little-endian float64 in base64.
func encodeFloats(values []float64) string {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeFloats(s string, dst []float64) error {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(buf) != 8*len(dst) {
		return fmt.Errorf("got %d bytes, want %d", len(buf), 8*len(dst))
	}
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}
