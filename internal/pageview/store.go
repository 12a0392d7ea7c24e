package pageview

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edsrzf/mmap-go"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Magic is the 8-byte header of every pageview file: "TTPV" followed by three
// zero bytes and the format version.
var Magic = []byte{'T', 'T', 'P', 'V', 0, 0, 0, 1}

// headerSize is the byte offset of the first count: 8-byte magic plus the
// 4-byte article count.
const headerSize = 12

// DefaultCacheSize bounds the number of simultaneously mapped day files
// across all wikis.
const DefaultCacheSize = 512

// cacheKey identifies one mapped day file.
type cacheKey struct {
	wiki string
	date Date
}

// handle is one mapped day file with a borrow count. Eviction from the LRU
// only marks the handle; the unmap happens when the last borrower releases.
type handle struct {
	mu      sync.Mutex
	data    mmap.MMap
	file    *os.File
	refs    int
	evicted bool
}

// acquire registers a borrow and returns the mapped bytes. Returns false when
// the handle was already unmapped by a release racing the caller's cache hit.
func (h *handle) acquire() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.data == nil {
		return nil, false
	}
	h.refs++
	return h.data, true
}

// release drops a borrow and unmaps once the handle is evicted and idle.
func (h *handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.evicted && h.refs == 0 {
		h.unmapLocked()
	}
}

// evict marks the handle evicted and unmaps immediately if nobody holds it.
func (h *handle) evict() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evicted = true
	if h.refs == 0 {
		h.unmapLocked()
	}
}

func (h *handle) unmapLocked() {
	if h.data != nil {
		_ = h.data.Unmap()
		h.data = nil
	}
	if h.file != nil {
		_ = h.file.Close()
		h.file = nil
	}
}

// Cache is the process-wide bounded LRU of mapped day files, shared by every
// wiki's [Store]. It is safe for concurrent use.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[cacheKey, *handle]
}

// NewCache creates a Cache bounded to size entries. size <= 0 selects
// [DefaultCacheSize].
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.NewWithEvict(size, func(_ cacheKey, h *handle) {
		h.evict()
	})
	if err != nil {
		return nil, fmt.Errorf("pageview: create cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// DayVector is a borrowed view of one day's counts. Callers must Release it
// when done; holding a DayVector keeps the underlying mapping alive across
// LRU eviction.
type DayVector struct {
	data []byte
	h    *handle
	n    uint32
}

// At returns the view count of the given article dense id.
func (v DayVector) At(dense uint32) uint64 {
	return binary.LittleEndian.Uint64(v.data[headerSize+8*int(dense):])
}

// Len returns the number of articles in the vector.
func (v DayVector) Len() int {
	return int(v.n)
}

// Release returns the borrow. The DayVector must not be used afterwards.
func (v DayVector) Release() {
	if v.h != nil {
		v.h.release()
	}
}

// Store reads one wiki's per-day pageview vectors. It is safe for concurrent
// use; mapped files are shared through the process-wide [Cache].
type Store struct {
	cache       *Cache
	dir         string // <dataDir>/<wiki>/pageviews
	wiki        string
	numArticles uint32
	earliest    Date

	staleFiles atomic.Int64
	onStale    atomic.Pointer[func()]
}

// NewStore creates a Store for one wiki. numArticles is the article count of
// the corpus's topology snapshot; day files written against a different
// snapshot are treated as absent. The earliest available day is discovered by
// a directory scan at construction.
func NewStore(cache *Cache, dataDir, wiki string, numArticles int) *Store {
	s := &Store{
		cache:       cache,
		dir:         filepath.Join(dataDir, wiki, "pageviews"),
		wiki:        wiki,
		numArticles: uint32(numArticles),
	}
	s.earliest = s.scanEarliest()
	return s
}

// Earliest returns the earliest day with a pageview file, or the zero Date
// when none exist.
func (s *Store) Earliest() Date {
	return s.earliest
}

// StaleFiles returns the number of day files rejected for a mismatched
// article count since the store was created.
func (s *Store) StaleFiles() int64 {
	return s.staleFiles.Load()
}

// OnStale registers a hook invoked whenever a stale day file is rejected,
// in addition to the [Store.StaleFiles] counter. Used to bridge the count
// into the metrics pipeline.
func (s *Store) OnStale(hook func()) {
	s.onStale.Store(&hook)
}

// path returns the day file location: <dir>/<YYYY>/<MM>/<DD>.bin.
func (s *Store) path(d Date) string {
	return filepath.Join(s.dir,
		fmt.Sprintf("%04d", d.Year),
		fmt.Sprintf("%02d", int(d.Month)),
		fmt.Sprintf("%02d.bin", d.Day))
}

// Day returns the mapped vector for d. The second return value is false when
// the day is absent (no file, unreadable, malformed, or written against a
// different topology snapshot); callers treat absent days as all-zero.
func (s *Store) Day(d Date) (DayVector, bool) {
	key := cacheKey{wiki: s.wiki, date: d}

	s.cache.mu.Lock()
	if h, ok := s.cache.lru.Get(key); ok {
		s.cache.mu.Unlock()
		if data, live := h.acquire(); live {
			return DayVector{data: data, h: h, n: s.numArticles}, true
		}
		// Lost a race against eviction; fall through and remap.
		s.cache.mu.Lock()
		s.cache.lru.Remove(key)
	}

	h, ok := s.open(d)
	if !ok {
		s.cache.mu.Unlock()
		return DayVector{}, false
	}
	h.refs = 1 // the caller's borrow
	s.cache.lru.Add(key, h)
	s.cache.mu.Unlock()
	return DayVector{data: h.data, h: h, n: s.numArticles}, true
}

// open maps the day file for d and validates its header.
func (s *Store) open(d Date) (*handle, bool) {
	f, err := os.Open(s.path(d))
	if err != nil {
		return nil, false
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, false
	}
	h := &handle{data: data, file: f}

	if len(data) < headerSize || !bytes.Equal(data[:8], Magic) {
		h.evict()
		return nil, false
	}
	n := binary.LittleEndian.Uint32(data[8:12])
	if n != s.numArticles || len(data) < headerSize+8*int(n) {
		s.staleFiles.Add(1)
		if hook := s.onStale.Load(); hook != nil {
			(*hook)()
		}
		h.evict()
		return nil, false
	}
	return h, true
}

// scanEarliest walks the pageview tree for the lexicographically smallest
// year/month/day file.
func (s *Store) scanEarliest() Date {
	years := sortedNumericNames(s.dir)
	for _, y := range years {
		months := sortedNumericNames(filepath.Join(s.dir, y.name))
		for _, m := range months {
			var days []numericName
			entries, err := os.ReadDir(filepath.Join(s.dir, y.name, m.name))
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				base := e.Name()
				if filepath.Ext(base) != ".bin" {
					continue
				}
				if n, err := strconv.Atoi(base[:len(base)-len(".bin")]); err == nil {
					days = append(days, numericName{name: base, value: n})
				}
			}
			if len(days) == 0 {
				continue
			}
			sort.Slice(days, func(i, j int) bool { return days[i].value < days[j].value })
			return Date{Year: y.value, Month: time.Month(m.value), Day: days[0].value}
		}
	}
	return Date{}
}

type numericName struct {
	name  string
	value int
}

// sortedNumericNames lists the numeric subdirectories of dir in ascending
// order.
func sortedNumericNames(dir string) []numericName {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []numericName
	for _, e := range entries {
		if !e.IsDir() && !isSymlinkDir(dir, e) {
			continue
		}
		if n, err := strconv.Atoi(e.Name()); err == nil {
			names = append(names, numericName{name: e.Name(), value: n})
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i].value < names[j].value })
	return names
}

func isSymlinkDir(dir string, e fs.DirEntry) bool {
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}
