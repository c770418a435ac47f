package consensus

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rechain/quorumchain/internal/wire"
)

// WAL is the write-ahead log of this node's self-authored outgoing
// consensus messages (Propose/Prevote/Precommit), per §4.6.7: every
// message is appended and fsynced before it is handed to the network
// layer, so a crash can never leave the node having broadcast something
// it cannot recall voting for on restart. Grounded in the teacher's
// absence of any such log (consensus.go holds everything in memory only)
// — this is new code in the teacher's idiom: small framed-record file,
// `os.File` + explicit `Sync()`, matching the plain-stdlib style the
// teacher uses for its own storage code before reaching for Badger.
type WAL struct {
	f      *os.File
	height uint64
}

// walMagic tags each record's frame so a half-written trailing record
// (a crash mid-fsync) is detectable and ignored on replay.
const walMagic = 0x57414C31 // "WAL1"

// OpenWAL opens (creating if needed) the WAL file at path for height.
func OpenWAL(path string, height uint64) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("consensus: open wal: %w", err)
	}
	return &WAL{f: f, height: height}, nil
}

// Append writes env as the next WAL record and fsyncs before returning,
// per §4.6.7's "append ... fsync, then emit" ordering. Callers must call
// this before handing env to the network layer for broadcast.
func (w *WAL) Append(env *wire.Envelope) error {
	body := env.Encode()
	var header [8]byte
	binary.LittleEndian.PutUint32(header[:4], walMagic)
	binary.LittleEndian.PutUint32(header[4:], uint32(len(body)))

	if _, err := w.f.Write(header[:]); err != nil {
		return fmt.Errorf("consensus: wal append header: %w", err)
	}
	if _, err := w.f.Write(body); err != nil {
		return fmt.Errorf("consensus: wal append body: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("consensus: wal fsync: %w", err)
	}
	return nil
}

// Replay reads every well-formed record in the WAL in order, calling fn
// for each. A truncated trailing record (crash mid-write) is silently
// stopped at, never treated as corruption of the records before it.
func (w *WAL) Replay(fn func(*wire.Envelope) error) error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("consensus: wal seek: %w", err)
	}
	for {
		var header [8]byte
		if _, err := io.ReadFull(w.f, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("consensus: wal read header: %w", err)
		}
		magic := binary.LittleEndian.Uint32(header[:4])
		if magic != walMagic {
			break
		}
		length := binary.LittleEndian.Uint32(header[4:])
		body := make([]byte, length)
		if _, err := io.ReadFull(w.f, body); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return fmt.Errorf("consensus: wal read body: %w", err)
		}
		env, err := wire.DecodeEnvelope(body)
		if err != nil {
			break
		}
		if err := fn(env); err != nil {
			return err
		}
	}
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("consensus: wal seek end: %w", err)
	}
	return nil
}

// Truncate discards every record, called once height H+1 commits and the
// WAL for H is no longer needed (§4.6.7).
func (w *WAL) Truncate() error {
	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("consensus: wal truncate: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("consensus: wal seek after truncate: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (w *WAL) Close() error {
	return w.f.Close()
}
