package externaldata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/born-ml/onnxport/internal/export"
)

// MaxTensorNameLen bounds the length of a tensor name used as a file or object name.
const MaxTensorNameLen = 4096

// FileName returns the file or object name a tensor is stored under: the
// name with \ / : ? " < > | replaced by underscores. Names that would still
// escape or alias the target directory are rejected.
func FileName(name string) (string, error) {
	if len(name) > MaxTensorNameLen {
		return "", &TensorError{Err: ErrTensorNameTooLong, Tensor: name, Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen)}
	}
	file := export.ExternalFileName(name)
	switch {
	case file == "", file == ".", file == "..":
		return "", &TensorError{Err: ErrInvalidTensorName, Tensor: name, Details: "does not name a file"}
	case strings.Contains(file, "\x00"):
		return "", &TensorError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	}
	return file, nil
}

// Checksum returns the hex SHA-256 digest of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
