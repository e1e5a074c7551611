package externaldata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnxport/internal/tensor"
)

// DirSink stores each tensor in its own file inside Dir, named by FileName.
// Locations are relative to Dir, so Dir should be the directory of the model
// file. Files are written concurrently by up to Workers goroutines.
type DirSink struct {
	Dir     string
	Workers int

	once   sync.Once
	group  *errgroup.Group
	ctx    context.Context //nolint:containedctx // Shared by the writers of one Materialize call
	mu     sync.Mutex
	locs   map[string]Location
	files  map[string]string // file name -> tensor name
	closed bool
}

var _ Sink = (*DirSink)(nil)

// NewDirSink returns a sink writing into dir with one worker per CPU.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir, Workers: runtime.NumCPU()}
}

func (s *DirSink) start(ctx context.Context) {
	s.once.Do(func() {
		s.group, s.ctx = errgroup.WithContext(ctx)
		if s.Workers > 0 {
			s.group.SetLimit(s.Workers)
		}
		s.locs = make(map[string]Location)
		s.files = make(map[string]string)
	})
}

// Put schedules t to be written to Dir/FileName(name).
func (s *DirSink) Put(ctx context.Context, name string, t *tensor.RawTensor) error {
	file, err := FileName(name)
	if err != nil {
		return err
	}
	s.start(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &TensorError{Err: ErrSinkClosed, Tensor: name}
	}
	if _, dup := s.locs[name]; dup {
		s.mu.Unlock()
		return &TensorError{Err: ErrDuplicateTensor, Tensor: name}
	}
	if other, taken := s.files[file]; taken {
		s.mu.Unlock()
		return &TensorError{Err: ErrDuplicateTensor, Tensor: name, Details: fmt.Sprintf("file %q already holds tensor %q", file, other)}
	}
	s.locs[name] = Location{}
	s.files[file] = name
	s.mu.Unlock()

	data := t.Contiguous().Host().Data()
	s.group.Go(func() error {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(s.Dir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // Weight files are meant to be shared
			return errors.Wrapf(err, "failed to write tensor %q", name)
		}
		klog.FromContext(s.ctx).V(2).Info("wrote tensor", "name", name, "path", path, "size", humanize.Bytes(uint64(len(data))))

		s.mu.Lock()
		s.locs[name] = Location{Path: file, Length: int64(len(data)), Checksum: Checksum(data)}
		s.mu.Unlock()
		return nil
	})
	return nil
}

// Close waits for pending writes and returns the location of every tensor.
func (s *DirSink) Close(ctx context.Context) (map[string]Location, error) {
	s.start(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.group.Wait(); err != nil {
		return nil, err
	}
	return s.locs, nil
}
