package loader

import (
	"fmt"
	"sort"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize  = 100 * 1024 * 1024 // 100MB
	MaxTensorCount = 1_000_000
)

// tensorExtent is the byte range of one tensor within a data section.
type tensorExtent struct {
	Name   string
	Offset int64
	Size   int64
}

// validateExtents checks for negative, out-of-bounds and overlapping tensor
// byte ranges. dataSize < 0 skips the bounds check.
func validateExtents(extents []tensorExtent, dataSize int64) error {
	sorted := make([]tensorExtent, len(extents))
	copy(sorted, extents)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Name < sorted[j].Name
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &FormatError{Err: ErrOutOfBounds, Tensor: t.Name, Details: fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size)}
		}
		if dataSize >= 0 && t.Offset+t.Size > dataSize {
			return &FormatError{Err: ErrOutOfBounds, Tensor: t.Name, Details: fmt.Sprintf("offset %d + size %d > data size %d", t.Offset, t.Size, dataSize)}
		}
		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &FormatError{
					Err:     ErrOffsetOverlap,
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}
