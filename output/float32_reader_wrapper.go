package output

import (
	"encoding/binary"
	"math"
)

// Float32ToByteReader wraps a Float32Reader to convert float32 samples to
// little endian bytes, for drivers reading an io.Reader.
type Float32ToByteReader struct {
	Float32Reader Float32Reader

	floats []float32
	buffer []byte
}

func NewFloat32ToByteReader(reader Float32Reader) *Float32ToByteReader {
	return &Float32ToByteReader{Float32Reader: reader}
}

// Read reads byte samples from the wrapped Float32Reader.
func (r *Float32ToByteReader) Read(p []byte) (int, error) {
	if len(r.buffer) == 0 {
		if cap(r.floats) < len(p)/4 {
			r.floats = make([]float32, len(p)/4)
		}

		n, err := r.Float32Reader.Read(r.floats[:len(p)/4])
		if err != nil {
			return 0, err
		}

		if cap(r.buffer) < n*4 {
			r.buffer = make([]byte, n*4)
		}

		r.buffer = r.buffer[:n*4]
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(r.buffer[i*4:], math.Float32bits(r.floats[i]))
		}
	}

	n := copy(p, r.buffer)
	r.buffer = r.buffer[n:]

	return n, nil
}
