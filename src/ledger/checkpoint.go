package ledger

import (
	"bytes"
	"sync"

	cm "github.com/mosaicnetworks/quilt/src/common"
)

// Checkpoint anchors calls in time. The runtime publishes a new checkpoint
// after every batch and on a timer; callers copy the latest id and hash into
// their calls to prove they were built recently and against this ledger.
type Checkpoint struct {
	ID   uint64 `json:"id"`
	Hash []byte `json:"hash"`
}

// CheckpointLog is a bounded window of recent checkpoints. Calls anchored to
// a checkpoint that has rolled out of the window are too old to admit.
type CheckpointLog struct {
	lock   sync.RWMutex
	window *cm.RollingIndex
	last   *Checkpoint
}

// NewCheckpointLog creates a CheckpointLog retaining at least size
// checkpoints, seeded with checkpoint 0 carrying the hash of the initial
// ledger state.
func NewCheckpointLog(size int, genesisHash []byte) *CheckpointLog {
	cl := &CheckpointLog{
		window: cm.NewRollingIndex("CheckpointLog", size),
	}

	genesis := &Checkpoint{ID: 0, Hash: genesisHash}
	cl.window.Set(genesis, 0)
	cl.last = genesis

	return cl
}

// Roll appends a new checkpoint with the given hash and returns it.
func (cl *CheckpointLog) Roll(hash []byte) *Checkpoint {
	cl.lock.Lock()
	defer cl.lock.Unlock()

	next := &Checkpoint{
		ID:   cl.last.ID + 1,
		Hash: hash,
	}

	cl.window.Set(next, int(next.ID))
	cl.last = next

	return next
}

// Last returns the most recent checkpoint.
func (cl *CheckpointLog) Last() *Checkpoint {
	cl.lock.RLock()
	defer cl.lock.RUnlock()

	return cl.last
}

// Contains reports whether the window still holds a checkpoint with the
// given id and hash. An in-window id with a different hash does not count; it
// means the caller was built against another ledger.
func (cl *CheckpointLog) Contains(id uint64, hash []byte) bool {
	cl.lock.RLock()
	defer cl.lock.RUnlock()

	item, err := cl.window.GetItem(int(id))
	if err != nil {
		return false
	}

	return bytes.Equal(item.(*Checkpoint).Hash, hash)
}
