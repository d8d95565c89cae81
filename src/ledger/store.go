package ledger

// PageStore is an interface for backend page stores. Writes go through the
// committer, which holds the page locks, so implementations only need to make
// individual operations safe for concurrent use; cross-page atomicity is the
// committer's business.
type PageStore interface {
	// CacheSize retrieves the cacheSize setting that determines the maximum
	// number of items that read caches can contain.
	CacheSize() int
	// GetPage returns a copy of the page at the given address, or a
	// KeyNotFound StoreErr.
	GetPage(key []byte) (*Page, error)
	// GetOrCreatePage returns a copy of the page at the given address,
	// allocating and recording a fresh zero page if the address is new.
	GetOrCreatePage(key []byte) (*Page, error)
	// SetPage writes a page unconditionally, keyed by its Owner.
	SetPage(page *Page) error
	// CompareAndSwapPage writes a page only if the stored version still
	// equals expectedVersion; otherwise it returns a VersionMismatch
	// StoreErr. Writing to an absent address returns KeyNotFound.
	CompareAndSwapPage(expectedVersion uint64, page *Page) error
	// PageKeys returns the hex addresses of all pages, sorted, so state
	// digests visit pages in one canonical order.
	PageKeys() []string
	// PageCount returns the number of allocated pages.
	PageCount() int
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
