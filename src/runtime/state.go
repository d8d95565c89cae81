package runtime

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a Quilt runtime: Ready, Executing, Suspended,
// or Shutdown
type State uint32

const (
	//Ready is the initial state of the runtime; it waits for batches.
	Ready State = iota
	//Executing means a batch is being processed
	Executing
	//Suspended is initialised, but not accepting batches
	Suspended
	//Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Executing:
		return "Executing"
	case Suspended:
		return "Suspended"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// WGLIMIT is the maximum number of goroutines that can be launched through
// state.goFunc
const WGLIMIT = 20

type state struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (r *state) getState() State {
	stateAddr := (*uint32)(&r.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (r *state) setState(s State) {
	stateAddr := (*uint32)(&r.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (r *state) goFunc(f func()) {
	tempWgCount := atomic.LoadInt32(&r.wgCount)
	if tempWgCount < WGLIMIT {
		r.wg.Add(1)
		atomic.AddInt32(&r.wgCount, 1)
		go func() {
			defer r.wg.Done()
			atomic.AddInt32(&r.wgCount, -1)
			f()
		}()
	}
}

func (r *state) waitRoutines() {
	r.wg.Wait()
}
