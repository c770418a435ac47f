package chain

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rechain/quorumchain/pkg/crypto"
)

// ConsensusConfig is the active-at-height tuning knobs for the consensus
// core: timers (§4.6.2), size bounds, and the caching bound on
// out-of-order messages. Stored under consensus-config-at(H).
type ConsensusConfig struct {
	ProposeTimeout        time.Duration
	RoundTimeout          time.Duration
	RoundTimeoutIncrease  time.Duration
	RequestTimeout        time.Duration
	MaxBlockSize          int
	MaxMessageLen         int
	FutureMessagesMax     int
}

// DefaultConsensusConfig mirrors the teacher's pkg/config defaults
// (timeout_propose/prevote/precommit/commit, 1-3s range), collapsed into
// the propose/round timer pair this spec's state machine actually uses.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		ProposeTimeout:       3 * time.Second,
		RoundTimeout:         3 * time.Second,
		RoundTimeoutIncrease: 500 * time.Millisecond,
		RequestTimeout:       500 * time.Millisecond,
		MaxBlockSize:         10_000,
		MaxMessageLen:        65_535,
		FutureMessagesMax:    64,
	}
}

// Encode is the canonical byte encoding stored under consensus-config-at.
func (c ConsensusConfig) Encode() []byte {
	buf := make([]byte, 0, 40)
	var u64 [8]byte
	put := func(d time.Duration) {
		binary.LittleEndian.PutUint64(u64[:], uint64(d))
		buf = append(buf, u64[:]...)
	}
	put(c.ProposeTimeout)
	put(c.RoundTimeout)
	put(c.RoundTimeoutIncrease)
	put(c.RequestTimeout)
	binary.LittleEndian.PutUint64(u64[:], uint64(c.MaxBlockSize))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(c.MaxMessageLen))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(c.FutureMessagesMax))
	buf = append(buf, u64[:]...)
	return buf
}

// DecodeConsensusConfig parses the bytes produced by Encode.
func DecodeConsensusConfig(data []byte) (ConsensusConfig, error) {
	if len(data) != 56 {
		return ConsensusConfig{}, fmt.Errorf("chain: decode consensus config: want 56 bytes, got %d", len(data))
	}
	r := &byteReader{data: data}
	u := func() uint64 {
		v, _ := r.uint64()
		return v
	}
	return ConsensusConfig{
		ProposeTimeout:       time.Duration(u()),
		RoundTimeout:         time.Duration(u()),
		RoundTimeoutIncrease: time.Duration(u()),
		RequestTimeout:       time.Duration(u()),
		MaxBlockSize:         int(u()),
		MaxMessageLen:        int(u()),
		FutureMessagesMax:    int(u()),
	}, nil
}

// ValidatorInfo is one entry of a ValidatorSet: the validator's consensus
// key (signs Propose/Prevote/Precommit), service key (signs Connect and
// submitted transactions), and advertised network address.
type ValidatorInfo struct {
	ConsensusKey crypto.PublicKey
	ServiceKey   crypto.PublicKey
	Address      string
}

// ValidatorSet is the dense, order-significant vector of validators active
// at a height: index into this vector is the ValidatorId used by
// proposer election.
type ValidatorSet struct {
	Validators []ValidatorInfo
}

// N is the number of validators, the modulus in proposer election.
func (vs ValidatorSet) N() int { return len(vs.Validators) }

// Proposer returns the ValidatorId for (H, R): v = (H + R) mod N.
func (vs ValidatorSet) Proposer(height uint64, round uint32) uint32 {
	n := uint64(vs.N())
	return uint32((height + uint64(round)) % n)
}

// Encode is the canonical byte encoding stored under validator-set-at.
func (vs ValidatorSet) Encode() []byte {
	var buf []byte
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], uint32(len(vs.Validators)))
	buf = append(buf, u32[:]...)
	for _, v := range vs.Validators {
		buf = append(buf, v.ConsensusKey[:]...)
		buf = append(buf, v.ServiceKey[:]...)
		buf = appendLenPrefixed(buf, []byte(v.Address))
	}
	return buf
}

// DecodeValidatorSet parses the bytes produced by Encode.
func DecodeValidatorSet(data []byte) (ValidatorSet, error) {
	r := &byteReader{data: data}
	n, err := r.uint32()
	if err != nil {
		return ValidatorSet{}, fmt.Errorf("chain: decode validator set count: %w", err)
	}
	vs := ValidatorSet{Validators: make([]ValidatorInfo, 0, n)}
	for i := uint32(0); i < n; i++ {
		if err := r.need(2 * crypto.PublicKeySize); err != nil {
			return ValidatorSet{}, fmt.Errorf("chain: decode validator keys: %w", err)
		}
		var v ValidatorInfo
		copy(v.ConsensusKey[:], r.data[r.pos:r.pos+crypto.PublicKeySize])
		r.pos += crypto.PublicKeySize
		copy(v.ServiceKey[:], r.data[r.pos:r.pos+crypto.PublicKeySize])
		r.pos += crypto.PublicKeySize
		addr, err := r.lenPrefixedString()
		if err != nil {
			return ValidatorSet{}, fmt.Errorf("chain: decode validator address: %w", err)
		}
		v.Address = addr
		vs.Validators = append(vs.Validators, v)
	}
	return vs, nil
}

// ConfigChange is the payload of a configuration-change transaction
// (§4.6.6): it takes effect starting at ActivationHeight itself (Open
// Question (c), decided in favor of the new config governing proposer
// election and message validation at that height).
type ConfigChange struct {
	ActivationHeight uint64
	NewConfig        ConsensusConfig
	NewValidators    ValidatorSet
}
