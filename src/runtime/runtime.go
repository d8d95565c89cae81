package runtime

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/config"
	"github.com/mosaicnetworks/quilt/src/crypto"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// Runtime chains the stages that take a batch of calls to a committed ledger
// state: admission, conflict scheduling, page loading, dispatch, and commit.
// Batches are serialized, but within a batch admission runs concurrently over
// all calls and execution runs concurrently over the conflict groups.
type Runtime struct {
	state

	conf *config.Config

	store       ledger.PageStore
	checkpoints *ledger.CheckpointLog
	registry    *Registry

	admission  *Admission
	scheduler  *Scheduler
	loader     *Loader
	dispatcher *Dispatcher
	committer  *Committer

	checkpointTimer *CheckpointTimer

	// submitLock serializes batches; each batch must see the pages and
	// checkpoints left behind by the previous one
	submitLock sync.Mutex

	shutdownCh chan struct{}

	statsLock      sync.Mutex
	batchCount     int64
	committedCount int64
	rejectedCount  int64
	batchTimes     []int64
	exportBuf      []*ledger.Call

	logger *logrus.Entry
}

// NewRuntime instantiates a Runtime over the given store. The checkpoint log
// is seeded with a genesis checkpoint hashing the store's current content, so
// a bootstrapped runtime starts from the state it left behind. The registry
// comes preloaded with the default program's transfer method; further
// programs register before Run is called.
func NewRuntime(conf *config.Config, store ledger.PageStore) (*Runtime, error) {
	logger := conf.Logger()

	runtime := &Runtime{
		conf:            conf,
		store:           store,
		checkpointTimer: NewConstantCheckpointTimer(),
		shutdownCh:      make(chan struct{}),
		logger:          logger,
	}

	digest, err := runtime.stateDigest()
	if err != nil {
		return nil, err
	}

	runtime.checkpoints = ledger.NewCheckpointLog(conf.CheckpointWindow, digest)

	runtime.registry = NewRegistry(logger)
	if err := runtime.registry.Register(ledger.DefaultProgram, MethodMoveFunds, moveFunds(logger)); err != nil {
		return nil, err
	}

	runtime.admission = NewAdmission(store, runtime.checkpoints, logger)
	runtime.scheduler = NewScheduler(logger)
	runtime.loader = NewLoader(store, logger)
	runtime.dispatcher = NewDispatcher(runtime.registry, conf.ExecBudget, logger)
	runtime.committer = NewCommitter(store, logger)

	if conf.MaintenanceMode {
		logger.Debug("MaintenanceMode => Suspended")
		runtime.setState(Suspended)
	} else {
		runtime.setState(Ready)
	}

	return runtime, nil
}

// Registry returns the handler registry, for programs to bind their entry
// points before the runtime starts accepting batches.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

/*******************************************************************************
Run loop
*******************************************************************************/

//RunAsync calls Run as a separate thread
func (r *Runtime) RunAsync() {
	r.logger.Debug("runasync")

	go r.Run()
}

//Run invokes the main loop of the runtime. Batches are processed on the
//SubmitBatch caller's routine; the loop's only job is to keep checkpoints
//fresh while the runtime is idle.
func (r *Runtime) Run() {
	go r.checkpointTimer.Run(r.conf.HeartbeatTimeout)

	for {
		state := r.getState()

		r.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Ready, Executing:
			r.tick()
		case Suspended:
			r.standby()
		case Shutdown:
			return
		}
	}
}

// tick rolls a checkpoint whenever the timer fires. Batches keep running on
// their submitters' routines; tick returns when the runtime is suspended or
// shut down.
func (r *Runtime) tick() {
	for s := r.getState(); s == Ready || s == Executing; s = r.getState() {
		select {
		case <-r.checkpointTimer.tickCh:
			r.goFunc(func() {
				r.submitLock.Lock()
				defer r.submitLock.Unlock()
				r.rollCheckpoint()
			})
			r.resetTimer()
		case <-r.shutdownCh:
			return
		}
	}
}

// standby swallows timer ticks while the runtime is suspended, so that
// maintenance leaves no trace in the checkpoint log.
func (r *Runtime) standby() {
	for r.getState() == Suspended {
		select {
		case <-r.checkpointTimer.tickCh:
			r.resetTimer()
		case <-r.shutdownCh:
			return
		}
	}
}

//ResetTimer
func (r *Runtime) resetTimer() {
	if !r.checkpointTimer.set {
		// the send must not block when the run loop is not active
		select {
		case r.checkpointTimer.resetCh <- r.conf.HeartbeatTimeout:
		default:
		}
	}
}

// Suspend stops the runtime from accepting batches until Resume is called.
func (r *Runtime) Suspend() {
	if r.getState() == Ready {
		r.logger.Debug("Suspend")
		r.setState(Suspended)
	}
}

// Resume lifts a suspension.
func (r *Runtime) Resume() {
	if r.getState() == Suspended {
		r.logger.Debug("Resume")
		r.setState(Ready)
	}
}

//Shutdown shuts the runtime down and closes the store. In-flight batches
//finish; subsequent submissions are turned away.
func (r *Runtime) Shutdown() {
	if r.getState() != Shutdown {
		r.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		r.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(r.shutdownCh)

		r.waitRoutines()

		//For some reason this needs to be called after closing the shutdownCh
		//Not entirely sure why...
		r.checkpointTimer.Shutdown()

		//The store should only be closed once all concurrent operations are
		//finished otherwise they will panic trying to use closed objects
		if err := r.store.Close(); err != nil {
			r.logger.WithError(err).Error("Closing store")
		}
	}
}

/*******************************************************************************
Batch pipeline
*******************************************************************************/

// SubmitBatch runs a batch of calls through the pipeline and returns one
// receipt per call, aligned with the submission order. The receipt's state
// digest identifies the ledger state after the batch; resubmitting the same
// batch against the same starting state always reproduces it.
func (r *Runtime) SubmitBatch(calls []*ledger.Call) (*ledger.BatchReceipt, error) {
	r.submitLock.Lock()
	defer r.submitLock.Unlock()

	if s := r.getState(); s != Ready {
		return nil, fmt.Errorf("runtime is %s", s)
	}

	r.setState(Executing)
	defer func() {
		// a Shutdown raced the batch if the state is no longer Executing
		if r.getState() == Executing {
			r.setState(Ready)
		}
	}()

	start := time.Now()

	receipt := ledger.NewBatchReceipt(len(calls))

	r.logger.WithFields(logrus.Fields{
		"batch": receipt.BatchID,
		"calls": len(calls),
	}).Debug("Processing batch")

	// stateless checks first, concurrently over the whole batch
	admitted := make([]*ledger.Call, len(calls))
	admissionErrs := make([]error, len(calls))
	r.forEach(len(calls), func(i int) {
		admissionErrs[i] = r.admission.Admit(calls[i])
	})

	for i, err := range admissionErrs {
		if err != nil {
			reason, _ := ledger.RejectReason(err)
			receipt.Receipts[i] = ledger.NewRejectReceipt(calls[i].Hex(), reason, 0)
		} else {
			admitted[i] = calls[i]
		}
	}

	// conflict groups execute concurrently; calls within a group run in
	// submission order
	groups := r.scheduler.Partition(admitted)
	r.forEach(len(groups), func(g int) {
		for _, i := range groups[g] {
			receipt.Receipts[i] = r.process(admitted[i])
		}
	})

	checkpoint := r.rollCheckpoint()
	r.resetTimer()

	if checkpoint != nil {
		receipt.StateDigest = common.EncodeToString(checkpoint.Hash)
	}
	receipt.Tally()

	r.recordBatch(time.Since(start), calls, receipt)

	r.logger.WithFields(logrus.Fields{
		"batch":     receipt.BatchID,
		"committed": receipt.Committed,
		"rejected":  receipt.Rejected,
		"digest":    receipt.StateDigest,
	}).Debug("Processed batch")

	return receipt, nil
}

// process runs one admitted call through load, dispatch, and commit.
func (r *Runtime) process(call *ledger.Call) *ledger.Receipt {
	ws, err := r.loader.Load(call)
	if err != nil {
		reason, ok := ledger.RejectReason(err)
		if !ok {
			r.logger.WithFields(logrus.Fields{
				"call":  call.Hex(),
				"error": err,
			}).Error("Loading pages")
			reason = ledger.ResourceExhausted
		}
		return ledger.NewRejectReceipt(call.Hex(), reason, 0)
	}

	execErr := r.dispatcher.Dispatch(call, ws.pages)

	return r.committer.Commit(ws, execErr)
}

// forEach runs f over the indexes 0 to n-1 on a bounded pool of workers and
// waits for all of them to finish.
func (r *Runtime) forEach(n int, f func(int)) {
	workers := r.conf.Workers
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			f(i)
		}(i)
	}

	wg.Wait()
}

/*******************************************************************************
Checkpoints and digests
*******************************************************************************/

// rollCheckpoint hashes the current ledger state into a fresh checkpoint.
func (r *Runtime) rollCheckpoint() *ledger.Checkpoint {
	digest, err := r.stateDigest()
	if err != nil {
		r.logger.WithError(err).Error("Computing state digest")
		return nil
	}

	return r.checkpoints.Roll(digest)
}

// stateDigest folds the page hashes, in page key order, into a single value
// identifying the whole ledger state.
func (r *Runtime) stateDigest() ([]byte, error) {
	digest := crypto.SHA256([]byte{})

	for _, keyHex := range r.store.PageKeys() {
		key, err := common.DecodeFromString(keyHex)
		if err != nil {
			return nil, err
		}

		page, err := r.store.GetPage(key)
		if err != nil {
			return nil, err
		}

		pageHash, err := page.Hash()
		if err != nil {
			return nil, err
		}

		digest = crypto.SimpleHashFromTwoHashes(digest, pageHash)
	}

	return digest, nil
}

// StateDigest returns the hex digest of the current ledger state.
func (r *Runtime) StateDigest() (string, error) {
	digest, err := r.stateDigest()
	if err != nil {
		return "", err
	}
	return common.EncodeToString(digest), nil
}

// LastCheckpoint returns the most recent checkpoint, for callers to anchor
// new calls to.
func (r *Runtime) LastCheckpoint() *ledger.Checkpoint {
	return r.checkpoints.Last()
}

/*******************************************************************************
Queries
*******************************************************************************/

// GetPage returns a copy of the page addressed by key.
func (r *Runtime) GetPage(key []byte) (*ledger.Page, error) {
	return r.store.GetPage(key)
}

// GetBalance returns the balance of the page addressed by key. Unknown pages
// read as zero.
func (r *Runtime) GetBalance(key []byte) (uint64, error) {
	page, err := r.store.GetPage(key)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return page.Balance, nil
}

// GetVersion returns the version of the page addressed by key. Unknown pages
// read as zero.
func (r *Runtime) GetVersion(key []byte) (uint64, error) {
	page, err := r.store.GetPage(key)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return page.Version, nil
}

// PageCount returns the number of pages in the store.
func (r *Runtime) PageCount() int {
	return r.store.PageCount()
}

/*******************************************************************************
Stats and export
*******************************************************************************/

// recordBatch updates the runtime statistics and queues the batch's committed
// calls for export.
func (r *Runtime) recordBatch(took time.Duration, calls []*ledger.Call, receipt *ledger.BatchReceipt) {
	r.statsLock.Lock()
	defer r.statsLock.Unlock()

	r.batchCount++
	r.committedCount += int64(receipt.Committed)
	r.rejectedCount += int64(receipt.Rejected)

	r.batchTimes = append(r.batchTimes, took.Nanoseconds())
	if len(r.batchTimes) > 50 {
		r.batchTimes = r.batchTimes[len(r.batchTimes)-50:]
	}

	for i, rec := range receipt.Receipts {
		if rec != nil && rec.Committed {
			r.exportBuf = append(r.exportBuf, calls[i])
		}
	}
	if max := r.conf.CacheSize; max > 0 && len(r.exportBuf) > max {
		r.exportBuf = r.exportBuf[len(r.exportBuf)-max:]
	}
}

// ExportCommitted drains committed calls into blob, oldest first, and returns
// how many were copied. It lets an external pipeline pick up the calls that
// made it into the ledger, batch boundaries aside.
func (r *Runtime) ExportCommitted(blob []*ledger.Call) int {
	r.statsLock.Lock()
	defer r.statsLock.Unlock()

	n := copy(blob, r.exportBuf)
	r.exportBuf = r.exportBuf[n:]

	return n
}

//GetStats returns runtime statistics
func (r *Runtime) GetStats() map[string]string {
	r.statsLock.Lock()
	defer r.statsLock.Unlock()

	medianBatchTime := common.Median(r.batchTimes)

	last := r.checkpoints.Last()

	s := map[string]string{
		"state":           r.getState().String(),
		"moniker":         r.conf.Moniker,
		"num_pages":       strconv.Itoa(r.store.PageCount()),
		"num_batches":     strconv.FormatInt(r.batchCount, 10),
		"committed_calls": strconv.FormatInt(r.committedCount, 10),
		"rejected_calls":  strconv.FormatInt(r.rejectedCount, 10),
		"median_batch_t":  fmt.Sprintf("%.2fms", float64(medianBatchTime)/float64(time.Millisecond)),
		"last_checkpoint": strconv.FormatUint(last.ID, 10),
		"export_backlog":  strconv.Itoa(len(r.exportBuf)),
	}

	return s
}
