// Package wire implements the transport (component D): Noise_XK_25519
// handshakes, length-prefixed framing, and the canonical encoding of the
// consensus message union. Grounded in the teacher's decub-gcl/go
// package for the tagged-message dispatch shape, and in decub-gossip's
// go.mod pull of github.com/flynn/noise (there only an indirect
// transitive dependency of libp2p's noise transport) promoted here into a
// direct, hand-driven Noise_XK_25519 handshake matching §4.2 exactly.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxHandshakeMessageLength bounds a single handshake frame's body.
const MaxHandshakeMessageLength = 65_535

// MaxFrameLength bounds a single post-handshake ciphertext frame.
const MaxFrameLength = 65_535

// WriteHandshakeFrame writes [u16 LE length][body] to w.
func WriteHandshakeFrame(w io.Writer, body []byte) error {
	if len(body) > MaxHandshakeMessageLength {
		return fmt.Errorf("wire: handshake message too large: %d bytes", len(body))
	}
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write handshake frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write handshake frame body: %w", err)
	}
	return nil
}

// ReadHandshakeFrame reads one [u16 LE length][body] frame from r.
func ReadHandshakeFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("wire: read handshake frame header: %w", err)
	}
	n := binary.LittleEndian.Uint16(hdr[:])
	if int(n) > MaxHandshakeMessageLength {
		return nil, fmt.Errorf("wire: handshake frame too large: %d bytes", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read handshake frame body: %w", err)
	}
	return body, nil
}

// WriteDataFrame writes [u32 LE length][ciphertext] to w. ciphertext
// already carries its trailing 16-byte auth tag, as produced by the
// Noise cipher state's Encrypt.
func WriteDataFrame(w io.Writer, ciphertext []byte) error {
	if len(ciphertext) > MaxFrameLength {
		return fmt.Errorf("wire: frame too large: %d bytes", len(ciphertext))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(ciphertext)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(ciphertext); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadDataFrame reads one [u32 LE length][ciphertext] frame from r.
func ReadDataFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("wire: read frame header: %w", err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrameLength {
		return nil, fmt.Errorf("wire: frame too large: %d bytes", n)
	}
	ciphertext := make([]byte, n)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return ciphertext, nil
}
