package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidDimension is returned when vector dimensions don't match
	ErrInvalidDimension = errors.New("invalid vector dimension")
)

// Dot returns the inner product of two equal-length vectors
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrInvalidDimension
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Norm returns the Euclidean (L2) norm of a vector
func Norm(a []float64) float64 {
	var sum float64
	for _, v := range a {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Normalize converts the vector in place to a unit vector (same direction,
// length 1) and returns its original norm. Zero vectors are left unchanged.
func Normalize(a []float64) float64 {
	norm := Norm(a)
	if norm > 0 {
		for i := range a {
			a[i] /= norm
		}
	}
	return norm
}

// Matrix is a dense row-major float64 matrix with a flat binary encoding,
// used to persist adapter weights in checkpoints and saved models
type Matrix struct {
	Rows int
	Cols int
	Data []float64 // row-major, length Rows*Cols
}

// NewMatrix creates a matrix backed by the given row-major data slice
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("%w: %dx%d matrix needs %d values, got %d",
			ErrInvalidDimension, rows, cols, rows*cols, len(data))
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// Encode serializes the matrix to a byte slice
func (m *Matrix) Encode() []byte {
	// Buffer layout: rows (4 bytes) + cols (4 bytes) + values (8 bytes each)
	buf := make([]byte, 8+8*len(m.Data))

	binary.LittleEndian.PutUint32(buf[0:], uint32(m.Rows))
	binary.LittleEndian.PutUint32(buf[4:], uint32(m.Cols))

	for i, val := range m.Data {
		binary.LittleEndian.PutUint64(buf[8+i*8:], math.Float64bits(val))
	}

	return buf
}

// Decode deserializes a matrix from a byte slice
func Decode(buf []byte) (*Matrix, error) {
	if len(buf) < 8 {
		return nil, errors.New("buffer too small to decode matrix header")
	}

	rows := int(binary.LittleEndian.Uint32(buf[0:]))
	cols := int(binary.LittleEndian.Uint32(buf[4:]))

	// Compare against the available element count rather than computing
	// 8+rows*cols*8, which can overflow on a corrupted header
	elems := (len(buf) - 8) / 8
	if rows < 0 || cols < 0 || (cols != 0 && rows > elems/cols) {
		return nil, fmt.Errorf("buffer too small to decode %dx%d matrix, got %d values", rows, cols, elems)
	}

	data := make([]float64, rows*cols)
	for i := range data {
		bits := binary.LittleEndian.Uint64(buf[8+i*8:])
		data[i] = math.Float64frombits(bits)
	}

	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}
