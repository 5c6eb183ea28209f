//go:build onnx && cgo

package onnx

import (
	"context"
	"fmt"
	"sync"

	"github.com/pdevine/tensor"

	"github.com/7blacky7/visionprep/superres"
)

func init() {
	superres.RegisterBackend(Name, factory)
}

// Backend serialisiert alle Forward-Passes ueber eine Session
type Backend struct {
	session *Session
	outCh   int
	scale   int

	mu     sync.Mutex
	closed bool
}

func factory(cfg superres.BackendConfig) (superres.Backend, error) {
	path, err := modelPath(cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := CreateSession(path, DefaultSessionOptions(), cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Backend{
		session: session,
		outCh:   cfg.Arch.NumOutCh,
		scale:   cfg.Arch.Scale,
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Forward(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	outShape, err := outputShape(input.Shape(), b.outCh, b.scale)
	if err != nil {
		return nil, err
	}

	data, ok := input.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("onnx: expected float32 tensor, got %v", input.Dtype())
	}

	inShape := make([]int64, 0, 4)
	for _, d := range input.Shape() {
		inShape = append(inShape, int64(d))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrAlreadyClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := b.session.Run(data, inShape, outShape)
	if err != nil {
		return nil, err
	}

	shape := make([]int, len(outShape))
	for i, d := range outShape {
		shape[i] = int(d)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(out)), nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.session.Destroy()
		b.closed = true
	}
	return nil
}
