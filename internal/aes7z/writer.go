package aes7z

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

var errCyclesPowerRange = errors.New("aes7z: cycles power must fit in 6 bits")

type writeCloser struct {
	w    io.Writer
	cbc  cipher.BlockMode
	pend bytes.Buffer
}

// Write buffers input and flushes whole AES blocks through the CBC
// encrypter as they become available; the final partial block is
// PKCS#7-padded and flushed on Close.
func (wc *writeCloser) Write(p []byte) (int, error) {
	n, _ := wc.pend.Write(p)

	for wc.pend.Len() >= aes.BlockSize {
		block := make([]byte, aes.BlockSize)

		_, _ = wc.pend.Read(block)
		wc.cbc.CryptBlocks(block, block)

		if _, err := wc.w.Write(block); err != nil {
			return n, fmt.Errorf("aes7z: error writing block: %w", err)
		}
	}

	return n, nil
}

func (wc *writeCloser) Close() error {
	pad := aes.BlockSize - wc.pend.Len()%aes.BlockSize
	if pad == 0 {
		pad = aes.BlockSize
	}

	for i := 0; i < pad; i++ {
		wc.pend.WriteByte(byte(pad)) //nolint:errcheck
	}

	for wc.pend.Len() > 0 {
		block := make([]byte, aes.BlockSize)

		_, _ = wc.pend.Read(block)
		wc.cbc.CryptBlocks(block, block)

		if _, err := wc.w.Write(block); err != nil {
			return fmt.Errorf("aes7z: error writing final block: %w", err)
		}
	}

	return nil
}

// NewWriteCloser returns coder properties describing the chosen key
// derivation parameters, plus an [io.WriteCloser] that AES-256-CBC
// encrypts (with PKCS#7 padding applied on Close) everything written to
// it before forwarding it to w. cyclesPower must fit in 6 bits, matching
// the property layout [NewReader] parses.
func NewWriteCloser(w io.Writer, password string, cyclesPower byte) ([]byte, io.WriteCloser, error) {
	if cyclesPower > 0x3f {
		return nil, nil, errCyclesPowerRange
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("aes7z: error generating iv: %w", err)
	}

	key, err := calculateKey(password, int(cyclesPower), nil)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("aes7z: error creating cipher: %w", err)
	}

	props := make([]byte, 0, 2+aes.BlockSize) //nolint:mnd
	props = append(props, 0x40|cyclesPower, 0x0f)
	props = append(props, iv...)

	return props, &writeCloser{w: w, cbc: cipher.NewCBCEncrypter(block, iv)}, nil
}
