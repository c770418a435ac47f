package store

import "fmt"

// IndexKind identifies which of the six index shapes a named address
// holds. Recorded once per address the first time it is opened; every
// later open of the same address must agree, or Snapshot.Index /
// Fork.Index fails deterministically (spec §6).
type IndexKind byte

const (
	KindEntry IndexKind = iota + 1
	KindProofEntry
	KindList
	KindProofList
	KindMap
	KindProofMap
)

func (k IndexKind) String() string {
	switch k {
	case KindEntry:
		return "Entry"
	case KindProofEntry:
		return "ProofEntry"
	case KindList:
		return "List"
	case KindProofList:
		return "ProofList"
	case KindMap:
		return "Map"
	case KindProofMap:
		return "ProofMap"
	default:
		return "Unknown"
	}
}

// Address names one index, optionally scoped by a group key (used for
// per-height or per-service sub-indexes sharing one logical table, e.g.
// consensus-config-at(H) or per-round vote sets).
type Address struct {
	Name  string
	Group []byte
}

// WithGroup returns a new Address under the same Name scoped to group.
func (a Address) WithGroup(group []byte) Address {
	return Address{Name: a.Name, Group: append([]byte{}, group...)}
}

// prefix computes the byte-string namespace every key belonging to this
// address is stored under. The scheme is: len(name) varint-free (1 byte,
// names are always short) + name bytes + 0x00 + group bytes. Two distinct
// (name, group) pairs never share a prefix because the name length is
// embedded before any group bytes can be mistaken for part of the name.
func (a Address) prefix() []byte {
	out := make([]byte, 0, 1+len(a.Name)+1+len(a.Group))
	out = append(out, byte(len(a.Name)))
	out = append(out, a.Name...)
	out = append(out, 0x00)
	out = append(out, a.Group...)
	return out
}

func (a Address) metaKey() []byte {
	return append([]byte{metaPrefixByte}, a.prefix()...)
}

// ErrIndexKindMismatch is returned when an address already exists under a
// different kind than the one being requested.
type ErrIndexKindMismatch struct {
	Address  Address
	Existing IndexKind
	Wanted   IndexKind
}

func (e *ErrIndexKindMismatch) Error() string {
	return fmt.Sprintf("store: index %q already opened as %s, cannot reopen as %s", e.Address.Name, e.Existing, e.Wanted)
}
