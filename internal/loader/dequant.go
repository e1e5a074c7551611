package loader

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Block layouts of the GGUF quantized types: 32 elements per block, each
// block led by fp16 parameters.
const (
	quantBlockSize = 32
	q4_0BlockBytes = 2 + 16     // d, 4-bit values
	q4_1BlockBytes = 2 + 2 + 16 // d, m, 4-bit values
	q8_0BlockBytes = 2 + 32     // d, int8 values
)

func isBlockQuantized(dtype GGUFDType) bool {
	return dtype == GGUFDTypeQ4_0 || dtype == GGUFDTypeQ4_1 || dtype == GGUFDTypeQ8_0
}

func halfAt(data []byte, off int) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(data[off:])).Float32()
}

// dequantize expands n block-quantized elements into float32 values.
//
//	Q4_0: x = d * (q - 8)
//	Q4_1: x = d * q + m
//	Q8_0: x = d * q
//
// 4-bit values are stored two per byte, low nibble first.
func dequantize(data []byte, dtype GGUFDType, n int) ([]float32, error) {
	var blockBytes int
	switch dtype {
	case GGUFDTypeQ4_0:
		blockBytes = q4_0BlockBytes
	case GGUFDTypeQ4_1:
		blockBytes = q4_1BlockBytes
	case GGUFDTypeQ8_0:
		blockBytes = q8_0BlockBytes
	default:
		return nil, errors.Errorf("GGUF dtype %d is not block-quantized", dtype)
	}
	blocks := (n + quantBlockSize - 1) / quantBlockSize
	if len(data) < blocks*blockBytes {
		return nil, errors.Errorf("need %d bytes for %d quantized elements, got %d", blocks*blockBytes, n, len(data))
	}

	out := make([]float32, blocks*quantBlockSize)
	for b := range blocks {
		block := data[b*blockBytes : (b+1)*blockBytes]
		dst := out[b*quantBlockSize : (b+1)*quantBlockSize]
		d := halfAt(block, 0)
		switch dtype {
		case GGUFDTypeQ4_0:
			for i, q := range block[2:] {
				dst[2*i] = d * (float32(q&0x0F) - 8)
				dst[2*i+1] = d * (float32(q>>4) - 8)
			}
		case GGUFDTypeQ4_1:
			m := halfAt(block, 2)
			for i, q := range block[4:] {
				dst[2*i] = d*float32(q&0x0F) + m
				dst[2*i+1] = d*float32(q>>4) + m
			}
		case GGUFDTypeQ8_0:
			for i, q := range block[2:] {
				dst[i] = d * float32(int8(q))
			}
		}
	}
	return out[:n], nil
}
