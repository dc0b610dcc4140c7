package delta

import (
	"errors"
	"fmt"
	"io"
)

type writeCloser struct {
	w     io.Writer
	state [stateSize]byte
	delta int
}

var errAlreadyClosedW = errors.New("delta: already closed")

func (wc *writeCloser) Write(p []byte) (int, error) {
	if wc.w == nil {
		return 0, errAlreadyClosedW
	}

	out := make([]byte, len(p))

	var (
		buffer [stateSize]byte
		j      int
	)

	copy(buffer[:], wc.state[:wc.delta])

	for i := 0; i < len(p); {
		for j = 0; j < wc.delta && i < len(p); i++ {
			buffer[j] = p[i] + buffer[j]
			out[i] = buffer[j]
			j++
		}
	}

	if j == wc.delta {
		j = 0
	}

	copy(wc.state[:], buffer[j:wc.delta])
	copy(wc.state[wc.delta-j:], buffer[:j])

	n, err := wc.w.Write(out)
	if err != nil {
		return n, fmt.Errorf("delta: error writing: %w", err)
	}

	return len(p), nil
}

func (wc *writeCloser) Close() error {
	wc.w = nil

	return nil
}

// NewWriter returns a new Delta io.WriteCloser. p must be the single
// property byte also passed to [NewReader] (delta distance minus one).
func NewWriter(p []byte, w io.Writer) (io.WriteCloser, error) {
	if len(p) != 1 {
		return nil, ErrInsufficientProperties
	}

	return &writeCloser{
		w:     w,
		delta: int(p[0] + 1),
	}, nil
}
