package history

import (
	"container/list"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/google/shlex"

	"github.com/rivershell/corefish/internal/iothread"
	"github.com/rivershell/corefish/internal/variable"
)

// DefaultSaveInterval and DefaultUnsavedTrigger are the save-cadence
// defaults of spec §4.B "add" ("now-elapsed since last save exceeds a
// configured interval, or the unsaved count exceeds a configured
// threshold"), overridable via internal/config.HistoryConfig.
const (
	DefaultSaveInterval  = 5 * time.Minute
	DefaultUnsavedTrigger = 64
	// DefaultLRUCap is spec §4.B save step 2's "bounded size (e.g. 2^18
	// items)".
	DefaultLRUCap = 1 << 18
)

// Session is the history engine of spec §3 "History session" / §4.B: a
// per-session queue of newly-added items backed by a lazily-mapped,
// merge-on-save on-disk file.
//
// Grounded on the teacher's internal/daemon.SessionManager for the
// mutex-guarded per-session-state shape, adapted from an in-memory
// session registry to the single mmap+offset-index+new-items-queue
// ownership spec §3 "History session" describes.
type Session struct {
	mu sync.Mutex

	name  string
	dir   string
	birth time.Time

	newItems     []Item
	unsavedCount int
	lastSave     time.Time

	saveInterval   time.Duration
	unsavedTrigger int
	lruCap         int

	mapped   mmap.MMap
	mappedAt string // path the current mmap was taken from, for logging
	loaded   bool
	oldItems []indexedItem // ascending chronological order, as parsed

	logger *slog.Logger
}

// Option configures a new Session.
type Option func(*Session)

func WithSaveInterval(d time.Duration) Option { return func(s *Session) { s.saveInterval = d } }
func WithUnsavedTrigger(n int) Option         { return func(s *Session) { s.unsavedTrigger = n } }
func WithLRUCap(n int) Option                 { return func(s *Session) { s.lruCap = n } }
func WithLogger(l *slog.Logger) Option        { return func(s *Session) { s.logger = l } }

// NewSession creates a session named name, backed by
// "<dir>/<name>_history" (spec §6 "History file").
func NewSession(name, dir string, opts ...Option) *Session {
	s := &Session{
		name:           name,
		dir:            dir,
		birth:          time.Now(),
		lastSave:       time.Now(),
		saveInterval:   DefaultSaveInterval,
		unsavedTrigger: DefaultUnsavedTrigger,
		lruCap:         DefaultLRUCap,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// path returns the on-disk history file path.
func (s *Session) path() string {
	return filepath.Join(s.dir, s.name+"_history")
}

// Add appends item to the in-memory new-items queue (spec §4.B "add").
// A tail item with the same command text is merged rather than
// duplicated. Crossing the configured save-interval or unsaved-count
// threshold triggers an internal save.
func (s *Session) Add(item Item) {
	s.mu.Lock()
	if n := len(s.newItems); n > 0 && s.newItems[n-1].Command == item.Command {
		s.newItems[n-1] = s.newItems[n-1].merge(item)
	} else {
		s.newItems = append(s.newItems, item)
	}
	s.unsavedCount++

	shouldSave := time.Since(s.lastSave) > s.saveInterval || s.unsavedCount > s.unsavedTrigger
	s.mu.Unlock()

	if shouldSave {
		if err := s.Save(); err != nil {
			s.logger.Debug("history: internal save failed", "session", s.name, "err", err)
		}
	}
}

// AddWithFileDetection tokenizes command, extracts tokens that
// syntactically could be paths, checks each for existence relative to
// cwd, and adds a history item whose Paths field holds the ones found to
// exist (spec §4.B "add_with_file_detection"). The check runs
// synchronously here; callers that want it off the main goroutine can
// wrap this in a go statement, mirroring the external iothread_perform
// collaborator spec §5 describes.
func (s *Session) AddWithFileDetection(command, cwd string) {
	tokens, err := shlex.Split(command)
	if err != nil {
		s.Add(Item{Command: command, When: time.Now()})
		return
	}

	var found []string
	for _, tok := range tokens {
		if !looksLikePath(tok) {
			continue
		}
		p := tok
		if !filepath.IsAbs(p) {
			p = filepath.Join(cwd, p)
		}
		if _, err := os.Stat(p); err == nil {
			found = append(found, tok)
		}
	}

	s.Add(Item{Command: command, When: time.Now(), Paths: found})
}

// AddWithFileDetectionAsync is the worker-pool-backed counterpart to
// AddWithFileDetection (spec §5 "Scheduling model": "Short
// iothread_perform(task, completion, ctx) calls enqueue a task; its
// completion runs back on the main thread"). The cwd is resolved from a
// variable.Snapshot taken on the main thread before dispatch — a worker
// goroutine must never touch the live variable store directly (spec §5
// "Shared resources") — so corefish's callers snapshot "PWD" and pass it
// here rather than letting this function read the store itself. The
// actual history insert happens inside the completion callback, which
// Drain runs back on the caller's own thread, preserving "history: main
// thread only" (spec §6 "Electric / read-only names").
func (s *Session) AddWithFileDetectionAsync(pool *iothread.Pool, command string, cwdSnapshot variable.Snapshot) bool {
	cwd := cwdSnapshot.First("PWD")
	when := time.Now()

	return pool.Perform(func() any {
		tokens, err := shlex.Split(command)
		if err != nil {
			return []string(nil)
		}
		var found []string
		for _, tok := range tokens {
			if !looksLikePath(tok) {
				continue
			}
			p := tok
			if !filepath.IsAbs(p) && cwd != "" {
				p = filepath.Join(cwd, p)
			}
			if _, err := os.Stat(p); err == nil {
				found = append(found, tok)
			}
		}
		return found
	}, func(v any) {
		found, _ := v.([]string)
		s.Add(Item{Command: command, When: when, Paths: found})
	})
}

// SeedImport bulk-adds history recovered from another shell's history
// file via ImportForShell, so switching to corefish doesn't lose a
// user's existing command history on first run.
func (s *Session) SeedImport(entries []ImportEntry) {
	for _, e := range entries {
		s.Add(Item{Command: e.Command, When: e.Timestamp})
	}
}

// looksLikePath reports whether tok is syntactically argument-like:
// non-empty and not leading-dash (spec §4.B "add_with_file_detection").
func looksLikePath(tok string) bool {
	return tok != "" && !strings.HasPrefix(tok, "-")
}

// ensureLoadedLocked lazily mmaps the on-disk file on first query (spec
// §4.B "Lazy load"). A missing file is not an error; items at or after
// the session's birth are skipped so concurrent sessions don't see each
// other's not-yet-merged commands until the next save/load cycle.
func (s *Session) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	f, err := os.Open(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("history: load failed", "session", s.name, "err", err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		s.logger.Debug("history: mmap failed", "session", s.name, "err", err)
		return
	}
	s.mapped = m
	s.mappedAt = s.path()

	all := scanItems(m)
	s.oldItems = s.oldItems[:0]
	for _, it := range all {
		if !it.When.IsZero() && !it.When.Before(s.birth) {
			continue
		}
		s.oldItems = append(s.oldItems, it)
	}
}

// invalidateLocked releases the mmap and offset index (spec §4.B save
// step 7: "Invalidate and release our own mmap and offset index").
func (s *Session) invalidateLocked() {
	if s.mapped != nil {
		_ = s.mapped.Unmap()
		s.mapped = nil
	}
	s.loaded = false
	s.oldItems = nil
}

// combinedLocked returns every visible item, most recent first: new
// items (most-recently-added first) followed by old items in recency
// order (spec §4.B "get_string": "new first, then old in recency order").
func (s *Session) combinedLocked() []Item {
	s.ensureLoadedLocked()

	out := make([]Item, 0, len(s.newItems)+len(s.oldItems))
	for i := len(s.newItems) - 1; i >= 0; i-- {
		out = append(out, s.newItems[i])
	}
	for i := len(s.oldItems) - 1; i >= 0; i-- {
		out = append(out, s.oldItems[i].Item)
	}
	return out
}

// GetString concatenates all visible items joined by separator (spec
// §4.B "get_string").
func (s *Session) GetString(separator string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.combinedLocked()
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Command
	}
	return strings.Join(parts, separator)
}

// ItemAtIndex returns the item at 1-based index idx, where 1 is the most
// recent (spec §4.B "item_at_index").
func (s *Session) ItemAtIndex(idx int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 1 {
		return Item{}, false
	}
	items := s.combinedLocked()
	if idx > len(items) {
		return Item{}, false
	}
	return items[idx-1], true
}

// Clear empties the in-memory state and deletes the on-disk file (spec
// §4.B "clear").
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLocked()
	s.newItems = nil
	s.unsavedCount = 0

	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Save durably merges the in-memory new items with whatever is currently
// on disk and rewrites the canonical file (spec §4.B "Save (merge
// rewrite)", steps 1-7).
func (s *Session) Save() error {
	s.mu.Lock()

	deduped := dedupNewItems(s.newItems)
	sortByTime(deduped)

	oldPath := s.path()
	freshData, freshFile, err := mapFresh(oldPath)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("history: save failed to map on-disk file", "session", s.name, "err", err)
		return err
	}
	if freshFile != nil {
		defer freshFile.Close()
	}
	if freshData != nil {
		defer freshData.Unmap()
	}

	freshItems := scanItems(freshData)

	lru := newLRU(s.lruCap)
	ni := 0
	for _, old := range freshItems {
		for ni < len(deduped) && deduped[ni].When.Before(old.When) {
			lru.put(deduped[ni])
			ni++
		}
		lru.put(old.Item)
	}
	for ; ni < len(deduped); ni++ {
		lru.put(deduped[ni])
	}

	content := lru.render()
	s.mu.Unlock()

	if err := writeAtomic(oldPath, content); err != nil {
		s.logger.Error("history: save failed", "session", s.name, "err", err)
		return err
	}

	s.mu.Lock()
	s.invalidateLocked()
	s.newItems = nil
	s.unsavedCount = 0
	s.lastSave = time.Now()
	s.mu.Unlock()
	return nil
}

// dedupNewItems compacts new items by command text, keeping the most
// recent occurrence (spec §4.B save step 1).
func dedupNewItems(items []Item) []Item {
	byCmd := make(map[string]Item, len(items))
	var order []string
	for _, it := range items {
		if existing, ok := byCmd[it.Command]; ok {
			byCmd[it.Command] = existing.merge(it)
		} else {
			order = append(order, it.Command)
			byCmd[it.Command] = it
		}
	}
	out := make([]Item, 0, len(order))
	for _, cmd := range order {
		out = append(out, byCmd[cmd])
	}
	return out
}

func sortByTime(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].When.Before(items[j].When) })
}

// mapFresh re-opens and re-mmaps the on-disk file so save sees items
// written by other sessions since this session's own mmap was taken
// (spec §4.B save step 3). A missing file yields a nil map, not an
// error.
func mapFresh(path string) (mmap.MMap, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		return nil, f, nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return m, f, nil
}

// writeAtomic writes content to a temp file in dir(path) then renames it
// over path (spec §4.B save step 6). The signal mask is not explicitly
// blocked here (spec's C-level concern); Go's os/signal delivers signals
// on an ordinary goroutine, so this write cannot be torn by a
// signal-handler interruption the way the source's C implementation
// guards against.
func writeAtomic(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("history: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("history: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("history: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}

// lru is the bounded, recency-ordered cache of spec §4.B save step 2:
// inserting an already-present command moves it to the back (most
// recent); exceeding capacity evicts the front (oldest).
type lru struct {
	cap   int
	order *list.List
	index map[string]*list.Element
}

func newLRU(capacity int) *lru {
	return &lru{cap: capacity, order: list.New(), index: make(map[string]*list.Element)}
}

func (l *lru) put(it Item) {
	if el, ok := l.index[it.Command]; ok {
		l.order.MoveToBack(el)
		el.Value = it
		return
	}
	el := l.order.PushBack(it)
	l.index[it.Command] = el
	if l.order.Len() > l.cap {
		front := l.order.Front()
		l.order.Remove(front)
		delete(l.index, front.Value.(Item).Command)
	}
}

// render writes the LRU's contents in chronological (insertion) order as
// spec §4.B on-disk blocks.
func (l *lru) render() string {
	var b strings.Builder
	for e := l.order.Front(); e != nil; e = e.Next() {
		b.WriteString(encodeBlock(e.Value.(Item)))
	}
	return b.String()
}
