package ledger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger"
	lru "github.com/hashicorp/golang-lru"
	cm "github.com/mosaicnetworks/quilt/src/common"
)

const pagePrefix = "page"

// BadgerStore implements the PageStore interface with a write-through badger
// database. Reads go through an LRU cache; writes land in the cache and the
// database together, so the database always holds the complete ledger while
// the cache holds the hot subset.
type BadgerStore struct {
	cacheSize int
	pageCache *lru.Cache
	db        *badger.DB
	path      string
	writeLock sync.Mutex
}

// NewBadgerStore creates a brand new BadgerStore with a new database.
func NewBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	pageCache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		cacheSize: cacheSize,
		pageCache: pageCache,
		db:        handle,
		path:      path,
	}

	return store, nil
}

// LoadBadgerStore creates a BadgerStore from an existing database.
func LoadBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	return NewBadgerStore(cacheSize, path)
}

// LoadOrCreateBadgerStore attempts to load a BadgerStore from path, and
// creates a new one if the path does not exist yet.
func LoadOrCreateBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(cacheSize, path)

	if err != nil {
		store, err = NewBadgerStore(cacheSize, path)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

//==============================================================================
//Keys

func pageKey(keyHex string) []byte {
	return []byte(fmt.Sprintf("%s_%s", pagePrefix, keyHex))
}

//==============================================================================
//Implement the PageStore interface

// CacheSize implements the PageStore interface.
func (s *BadgerStore) CacheSize() int {
	return s.cacheSize
}

// GetPage implements the PageStore interface.
func (s *BadgerStore) GetPage(key []byte) (*Page, error) {
	keyHex := cm.EncodeToString(key)

	//try to get it from cache
	if cached, ok := s.pageCache.Get(keyHex); ok {
		return cached.(*Page).Copy(), nil
	}

	//if not in cache, try to get it from db
	page, err := s.dbGetPage(keyHex)
	if err != nil {
		return nil, mapError(err, "Page", keyHex)
	}

	s.pageCache.Add(keyHex, page)

	return page.Copy(), nil
}

// GetOrCreatePage implements the PageStore interface. Allocating a page is a
// durable effect; a fresh page stays in the store even if the call that
// referenced it ends up rejected.
func (s *BadgerStore) GetOrCreatePage(key []byte) (*Page, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	page, err := s.GetPage(key)
	if err == nil {
		return page, nil
	}

	if !cm.IsStore(err, cm.KeyNotFound) {
		return nil, err
	}

	page = NewPage(key)
	if err := s.setPage(page); err != nil {
		return nil, err
	}

	return page.Copy(), nil
}

// SetPage implements the PageStore interface.
func (s *BadgerStore) SetPage(page *Page) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	return s.setPage(page)
}

// CompareAndSwapPage implements the PageStore interface.
func (s *BadgerStore) CompareAndSwapPage(expectedVersion uint64, page *Page) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	current, err := s.GetPage(page.Owner)
	if err != nil {
		return err
	}

	if current.Version != expectedVersion {
		return cm.NewStoreErr("Page", cm.VersionMismatch, page.OwnerHex())
	}

	return s.setPage(page)
}

// PageKeys implements the PageStore interface.
func (s *BadgerStore) PageKeys() []string {
	keys := []string{}

	s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("%s_", pagePrefix))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().KeyCopy(nil))
			keys = append(keys, strings.TrimPrefix(k, string(prefix)))
		}

		return nil
	})

	sort.Strings(keys)

	return keys
}

// PageCount implements the PageStore interface.
func (s *BadgerStore) PageCount() int {
	return len(s.PageKeys())
}

// Close implements the PageStore interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the PageStore interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++
//DB Methods

func (s *BadgerStore) dbGetPage(keyHex string) (*Page, error) {
	var pageBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(keyHex))
		if err != nil {
			return err
		}
		pageBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	page := new(Page)
	if err := page.Unmarshal(pageBytes); err != nil {
		return nil, err
	}

	return page, nil
}

// setPage writes through to the cache and the db. Callers hold writeLock.
func (s *BadgerStore) setPage(page *Page) error {
	val, err := page.Marshal()
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(pageKey(page.OwnerHex()), val); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.pageCache.Add(page.OwnerHex(), page.Copy())

	return nil
}

func isDBKeyNotFound(err error) bool {
	return err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
