package wire

import (
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/rechain/quorumchain/pkg/crypto"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Session is an established, handshake-complete Noise_XK_25519 channel:
// one cipher state per direction, since Noise's XK pattern derives
// distinct send/receive keys for initiator and responder.
type Session struct {
	send *noise.CipherState
	recv *noise.CipherState
}

func toDHKey(kp crypto.X25519KeyPair) noise.DHKey {
	return noise.DHKey{Private: kp.Private[:], Public: kp.Public[:]}
}

// DialHandshake runs the initiator side of Noise_XK_25519 over rw: the
// dialer must already know remoteStatic, the static public key the
// responder is expected to present (learned from the active validator
// set), since XK authenticates the responder to the initiator but not
// the reverse.
func DialHandshake(rw io.ReadWriter, static crypto.X25519KeyPair, remoteStatic [32]byte) (*Session, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXK,
		Initiator:     true,
		StaticKeypair: toDHKey(static),
		PeerStatic:    remoteStatic[:],
	})
	if err != nil {
		return nil, fmt.Errorf("wire: init initiator handshake: %w", err)
	}

	// -> e
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: write handshake message 1: %w", err)
	}
	if err := WriteHandshakeFrame(rw, msg1); err != nil {
		return nil, err
	}

	// <- e, ee, s, es
	msg2, err := ReadHandshakeFrame(rw)
	if err != nil {
		return nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg2); err != nil {
		return nil, fmt.Errorf("wire: read handshake message 2: %w", err)
	}

	// -> s, se
	msg3, csSend, csRecv, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: write handshake message 3: %w", err)
	}
	if err := WriteHandshakeFrame(rw, msg3); err != nil {
		return nil, err
	}

	return &Session{send: csSend, recv: csRecv}, nil
}

// AcceptHandshake runs the responder side of Noise_XK_25519 over rw. It
// returns the initiator's static public key, learned mid-handshake, for
// the caller to check against the active validator set (the responder
// has no a priori knowledge of who is dialing it, unlike the dialer).
func AcceptHandshake(rw io.ReadWriter, static crypto.X25519KeyPair) (*Session, [32]byte, error) {
	var remoteStatic [32]byte

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXK,
		Initiator:     false,
		StaticKeypair: toDHKey(static),
	})
	if err != nil {
		return nil, remoteStatic, fmt.Errorf("wire: init responder handshake: %w", err)
	}

	// -> e
	msg1, err := ReadHandshakeFrame(rw)
	if err != nil {
		return nil, remoteStatic, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, remoteStatic, fmt.Errorf("wire: read handshake message 1: %w", err)
	}

	// <- e, ee, s, es
	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, remoteStatic, fmt.Errorf("wire: write handshake message 2: %w", err)
	}
	if err := WriteHandshakeFrame(rw, msg2); err != nil {
		return nil, remoteStatic, err
	}

	// -> s, se
	msg3, err := ReadHandshakeFrame(rw)
	if err != nil {
		return nil, remoteStatic, err
	}
	payload, csRecv, csSend, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, remoteStatic, fmt.Errorf("wire: read handshake message 3: %w", err)
	}
	_ = payload

	peerStatic := hs.PeerStatic()
	if len(peerStatic) != 32 {
		return nil, remoteStatic, fmt.Errorf("wire: responder learned no initiator static key")
	}
	copy(remoteStatic[:], peerStatic)

	return &Session{send: csSend, recv: csRecv}, remoteStatic, nil
}

// WriteMessage encrypts and frames plaintext.
func (s *Session) WriteMessage(w io.Writer, plaintext []byte) error {
	ciphertext, err := s.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return fmt.Errorf("wire: encrypt frame: %w", err)
	}
	return WriteDataFrame(w, ciphertext)
}

// ReadMessage reads one frame and decrypts it.
func (s *Session) ReadMessage(r io.Reader) ([]byte, error) {
	ciphertext, err := ReadDataFrame(r)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wire: decrypt frame: %w", err)
	}
	return plaintext, nil
}
