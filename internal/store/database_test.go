package store

import (
	"testing"

	"github.com/rechain/quorumchain/pkg/merkle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkMergeRoundTrip(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()

	addr := Address{Name: "balances"}

	fork := db.Fork()
	view, err := fork.Index(addr, KindProofMap)
	require.NoError(t, err)
	pm := merkle.NewProofMap(view)
	pm.Put([]byte("alice"), []byte("100"))
	root := pm.RootHash()

	require.NoError(t, db.Merge(fork.Patch()))

	snap := db.Snapshot()
	readView, err := snap.Index(addr, KindProofMap)
	require.NoError(t, err)
	readPM := merkle.NewProofMap(readView)
	assert.Equal(t, root, readPM.RootHash())
	val, ok := readPM.Get([]byte("alice"))
	require.True(t, ok)
	assert.Equal(t, []byte("100"), val)
}

func TestIndexKindMismatchRejected(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()

	addr := Address{Name: "heights"}
	fork := db.Fork()
	_, err := fork.Index(addr, KindProofList)
	require.NoError(t, err)
	require.NoError(t, db.Merge(fork.Patch()))

	fork2 := db.Fork()
	_, err = fork2.Index(addr, KindProofMap)
	require.Error(t, err)
	var mismatch *ErrIndexKindMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, KindProofList, mismatch.Existing)
	assert.Equal(t, KindProofMap, mismatch.Wanted)
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()
	addr := Address{Name: "counter"}

	fork := db.Fork()
	view, _ := fork.Index(addr, KindEntry)
	merkle.NewEntry(view).Set([]byte("1"))
	require.NoError(t, db.Merge(fork.Patch()))

	snap := db.Snapshot()
	snapView, _ := snap.Index(addr, KindEntry)

	fork2 := db.Fork()
	view2, _ := fork2.Index(addr, KindEntry)
	merkle.NewEntry(view2).Set([]byte("2"))
	require.NoError(t, db.Merge(fork2.Patch()))

	val, ok := merkle.NewEntry(snapView).Get()
	require.True(t, ok)
	assert.Equal(t, []byte("1"), val, "snapshot taken before the second merge must not see it")
}

func TestGroupedAddressesDoNotCollide(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()
	base := Address{Name: "round-votes"}

	fork := db.Fork()
	v1, err := fork.Index(base.WithGroup([]byte{0, 0, 0, 1}), KindList)
	require.NoError(t, err)
	v2, err := fork.Index(base.WithGroup([]byte{0, 0, 0, 2}), KindList)
	require.NoError(t, err)

	merkle.NewList(v1).Push([]byte("round-1-vote"))
	merkle.NewList(v2).Push([]byte("round-2-vote-a"))
	merkle.NewList(v2).Push([]byte("round-2-vote-b"))

	require.NoError(t, db.Merge(fork.Patch()))

	snap := db.Snapshot()
	r1, _ := snap.Index(base.WithGroup([]byte{0, 0, 0, 1}), KindList)
	r2, _ := snap.Index(base.WithGroup([]byte{0, 0, 0, 2}), KindList)
	assert.EqualValues(t, 1, merkle.NewList(r1).Len())
	assert.EqualValues(t, 2, merkle.NewList(r2).Len())
}

func TestCheckpointRollback(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()
	addr := Address{Name: "scratch"}

	fork := db.Fork()
	view, _ := fork.Index(addr, KindEntry)
	merkle.NewEntry(view).Set([]byte("before"))
	require.NoError(t, db.Merge(fork.Patch()))

	cp, err := db.Checkpoint()
	require.NoError(t, err)

	fork2 := db.Fork()
	view2, _ := fork2.Index(addr, KindEntry)
	merkle.NewEntry(view2).Set([]byte("after"))
	require.NoError(t, db.Merge(fork2.Patch()))

	snap := db.Snapshot()
	v, _ := snap.Index(addr, KindEntry)
	val, _ := merkle.NewEntry(v).Get()
	assert.Equal(t, []byte("after"), val)

	require.NoError(t, db.Rollback(cp))

	snap2 := db.Snapshot()
	v2, _ := snap2.Index(addr, KindEntry)
	val2, _ := merkle.NewEntry(v2).Get()
	assert.Equal(t, []byte("before"), val2)
}

func TestAggregatorTracksRegisteredRoots(t *testing.T) {
	db := NewMemoryDatabase()
	defer db.Close()

	fork := db.Fork()
	balancesView, err := fork.Index(Address{Name: "balances"}, KindProofMap)
	require.NoError(t, err)
	balances := merkle.NewProofMap(balancesView)
	balances.Put([]byte("alice"), []byte("100"))

	aggView, err := fork.Index(Address{Name: "__aggregator"}, KindProofMap)
	require.NoError(t, err)
	agg := merkle.NewAggregator(aggView)
	agg.Register("token.balances", balances.RootHash())

	stateHash := agg.StateHash()
	assert.False(t, stateHash.IsZero())
	require.NoError(t, db.Merge(fork.Patch()))
}
