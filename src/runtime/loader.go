package runtime

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// lockTable hands out one mutex per page address, created on demand. The
// scheduler already keeps conflicting calls in the same group, so these locks
// are normally uncontended; they make page exclusivity hold even if a caller
// bypasses the scheduler.
type lockTable struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given page addresses and returns a function releasing
// them. Locks are always taken in sorted address order so that two calls
// racing for overlapping pages cannot deadlock.
func (lt *lockTable) acquire(keyHexes []string) func() {
	sorted := append([]string{}, keyHexes...)
	sort.Strings(sorted)

	locks := make([]*sync.Mutex, len(sorted))
	for i, k := range sorted {
		locks[i] = lt.get(k)
	}

	for _, l := range locks {
		l.Lock()
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (lt *lockTable) get(key string) *sync.Mutex {
	lt.Lock()
	defer lt.Unlock()

	l, ok := lt.locks[key]
	if !ok {
		l = new(sync.Mutex)
		lt.locks[key] = l
	}

	return l
}

// workingSet is the execution context of a single call: exclusive locks on the
// referenced pages, working copies for the handler to mutate, and the post-fee
// snapshot the committer validates the copies against.
type workingSet struct {
	call *ledger.Call

	// pages is aligned with call.Body.Keys. A key referenced twice aliases
	// the same copy, so handlers see one coherent page per address.
	pages []*ledger.Page

	// unique holds the deduplicated working copies in first-reference order,
	// so unique[0] is always the caller page; snapshot holds their states
	// right after the fee debit, in the same order.
	unique   []*ledger.Page
	snapshot []*ledger.Page

	release func()
}

// Loader materializes the pages of a call. It acquires the page locks, re-runs
// the version and fee checks now that the pages cannot move, allocates fresh
// zero pages for unknown keys, debits the fee, and hands the set over for
// execution.
type Loader struct {
	store  ledger.PageStore
	locks  *lockTable
	logger *logrus.Entry
}

// NewLoader instantiates a Loader over the given store.
func NewLoader(store ledger.PageStore, logger *logrus.Entry) *Loader {
	return &Loader{
		store:  store,
		locks:  newLockTable(),
		logger: logger,
	}
}

// Load returns the call's working set with the fee already debited from the
// caller's copy. A non-nil error means the call is turned away with nothing
// spent and no locks held. Page allocation is durable: fresh pages created
// here stay in the store even if the call is later discarded.
func (l *Loader) Load(call *ledger.Call) (*workingSet, error) {
	keyHexes := make([]string, 0, len(call.Body.Keys))
	seen := make(map[string]bool)
	for _, k := range call.Body.Keys {
		h := common.EncodeToString(k)
		if !seen[h] {
			seen[h] = true
			keyHexes = append(keyHexes, h)
		}
	}

	release := l.locks.acquire(keyHexes)

	// an earlier call in the group may have moved the caller page since
	// admission, so version and fee are checked again under lock
	version, balance := uint64(0), uint64(0)
	callerPage, err := l.store.GetPage(call.Body.Keys[0])
	if err == nil {
		version, balance = callerPage.Version, callerPage.Balance
	} else if !common.IsStore(err, common.KeyNotFound) {
		release()
		return nil, err
	}

	if call.Body.Version <= version {
		release()
		l.logger.WithFields(logrus.Fields{
			"call":           call.Hex(),
			"call_version":   call.Body.Version,
			"stored_version": version,
		}).Debug("Load: version not above stored")
		return nil, ledger.NewCallErr(call.Hex(), ledger.ReplayedOrStale, "version not above stored")
	}

	if call.Body.Fee > balance {
		release()
		l.logger.WithFields(logrus.Fields{
			"call":    call.Hex(),
			"fee":     call.Body.Fee,
			"balance": balance,
		}).Debug("Load: fee above balance")
		return nil, ledger.NewCallErr(call.Hex(), ledger.InsufficientFee, "fee above balance")
	}

	byHex := make(map[string]*ledger.Page, len(keyHexes))
	unique := make([]*ledger.Page, 0, len(keyHexes))
	for _, k := range call.Body.Keys {
		h := common.EncodeToString(k)
		if _, ok := byHex[h]; ok {
			continue
		}
		page, err := l.store.GetOrCreatePage(k)
		if err != nil {
			release()
			return nil, err
		}
		byHex[h] = page
		unique = append(unique, page)
	}

	pages := make([]*ledger.Page, len(call.Body.Keys))
	for i, k := range call.Body.Keys {
		pages[i] = byHex[common.EncodeToString(k)]
	}

	// the fee is spent before the handler sees the pages
	pages[0].Balance -= call.Body.Fee

	snapshot := make([]*ledger.Page, len(unique))
	for i, p := range unique {
		snapshot[i] = p.Copy()
	}

	return &workingSet{
		call:     call,
		pages:    pages,
		unique:   unique,
		snapshot: snapshot,
		release:  release,
	}, nil
}
