package ledger

import (
	"sort"
	"sync"

	cm "github.com/mosaicnetworks/quilt/src/common"
)

// InmemStore implements the PageStore interface with a plain map. Pages are
// authoritative state, not cache, so nothing is ever evicted; InmemStore is
// for tests and throwaway deployments where losing the ledger on restart is
// acceptable.
type InmemStore struct {
	cacheSize int
	pagesLock sync.RWMutex
	pages     map[string]*Page //owner hex => Page
}

// NewInmemStore creates a new InmemStore. The cacheSize setting is recorded
// for the PageStore interface but no cache is involved.
func NewInmemStore(cacheSize int) *InmemStore {
	store := &InmemStore{
		cacheSize: cacheSize,
		pages:     make(map[string]*Page),
	}
	return store
}

// CacheSize implements the PageStore interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// GetPage implements the PageStore interface.
func (s *InmemStore) GetPage(key []byte) (*Page, error) {
	s.pagesLock.RLock()
	defer s.pagesLock.RUnlock()

	keyHex := cm.EncodeToString(key)

	page, ok := s.pages[keyHex]
	if !ok {
		return nil, cm.NewStoreErr("Page", cm.KeyNotFound, keyHex)
	}

	return page.Copy(), nil
}

// GetOrCreatePage implements the PageStore interface. Allocating a page is a
// durable effect; a fresh page stays in the store even if the call that
// referenced it ends up rejected.
func (s *InmemStore) GetOrCreatePage(key []byte) (*Page, error) {
	s.pagesLock.Lock()
	defer s.pagesLock.Unlock()

	keyHex := cm.EncodeToString(key)

	page, ok := s.pages[keyHex]
	if !ok {
		page = NewPage(key)
		s.pages[keyHex] = page
	}

	return page.Copy(), nil
}

// SetPage implements the PageStore interface.
func (s *InmemStore) SetPage(page *Page) error {
	s.pagesLock.Lock()
	defer s.pagesLock.Unlock()

	s.pages[page.OwnerHex()] = page.Copy()

	return nil
}

// CompareAndSwapPage implements the PageStore interface.
func (s *InmemStore) CompareAndSwapPage(expectedVersion uint64, page *Page) error {
	s.pagesLock.Lock()
	defer s.pagesLock.Unlock()

	keyHex := page.OwnerHex()

	current, ok := s.pages[keyHex]
	if !ok {
		return cm.NewStoreErr("Page", cm.KeyNotFound, keyHex)
	}

	if current.Version != expectedVersion {
		return cm.NewStoreErr("Page", cm.VersionMismatch, keyHex)
	}

	s.pages[keyHex] = page.Copy()

	return nil
}

// PageKeys implements the PageStore interface.
func (s *InmemStore) PageKeys() []string {
	s.pagesLock.RLock()
	defer s.pagesLock.RUnlock()

	keys := make([]string, 0, len(s.pages))
	for k := range s.pages {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// PageCount implements the PageStore interface.
func (s *InmemStore) PageCount() int {
	s.pagesLock.RLock()
	defer s.pagesLock.RUnlock()

	return len(s.pages)
}

// Close implements the PageStore interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the PageStore interface.
func (s *InmemStore) StorePath() string {
	return ""
}
