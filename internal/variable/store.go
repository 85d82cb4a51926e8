package variable

import (
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rivershell/corefish/internal/event"
)

// HistoryProvider supplies the electric "history" variable's value
// (spec §6: "history: multi-value, the current session's commands").
type HistoryProvider interface {
	Items() []string
}

// SanityHook is called on a programming-invariant violation (spec §7).
// The default implementation panics with msg; tests inject a recording
// hook instead.
type SanityHook func(msg string)

// Hooks bundles the reactive callbacks the store fires on certain
// mutations (spec §4.A "Locale awareness" / reactive hooks).
type Hooks struct {
	OnLocaleRefresh        func()
	OnMessageCatalogReload func()
	OnColorRefresh         func()
	On256Detect            func()
}

// Store is the variable store of spec §4.A.
type Store struct {
	mu sync.Mutex

	scopes []*scopeNode // index 0 is global, never popped

	readOnly map[string]bool
	denylist map[string]bool // exported without join-conversion (e.g. DISPLAY)

	universal        map[string]*entry
	universalBarrier bool

	exportedEnvCache []string
	exportedEnvDirty bool

	lastEffectiveLocale string

	status  int
	history HistoryProvider

	dispatcher *event.Dispatcher
	hooks      Hooks
	sanity     SanityHook
	logger     *slog.Logger
	termSize   func() (cols, lines int)
}

// Option configures a new Store.
type Option func(*Store)

func WithDispatcher(d *event.Dispatcher) Option { return func(s *Store) { s.dispatcher = d } }
func WithHooks(h Hooks) Option                  { return func(s *Store) { s.hooks = h } }
func WithSanityHook(h SanityHook) Option        { return func(s *Store) { s.sanity = h } }
func WithLogger(l *slog.Logger) Option          { return func(s *Store) { s.logger = l } }
func WithHistoryProvider(h HistoryProvider) Option {
	return func(s *Store) { s.history = h }
}
func WithTermSize(f func() (cols, lines int)) Option {
	return func(s *Store) { s.termSize = f }
}

// defaultReadOnly is spec §6's "Always present; never settable by USER"
// list, electric and stored alike.
var defaultReadOnly = []string{
	"status", "history", "umask", "COLUMNS", "LINES",
	"_", "version", "FISH_VERSION", "SHLVL",
}

// New creates a Store with the global scope pushed.
func New(opts ...Option) *Store {
	s := &Store{
		scopes:   []*scopeNode{newScopeNode(false)},
		readOnly: make(map[string]bool),
		denylist: map[string]bool{"DISPLAY": true},
		universal: make(map[string]*entry),
		logger:   slog.Default(),
	}
	for _, name := range defaultReadOnly {
		s.readOnly[name] = true
	}
	for _, o := range opts {
		o(s)
	}
	if s.sanity == nil {
		s.sanity = func(msg string) { panic("variable: sanity violation: " + msg) }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// global returns the base scope node (index 0), never popped.
func (s *Store) global() *scopeNode { return s.scopes[0] }

// top returns the innermost (current) scope node.
func (s *Store) top() *scopeNode { return s.scopes[len(s.scopes)-1] }

// PushScope pushes a new scope node (spec §4.A "push_scope").
func (s *Store) PushScope(shadowing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = append(s.scopes, newScopeNode(shadowing))
}

// PopScope pops the innermost scope node. Popping the global scope is a
// programming-invariant violation (spec §3 invariants).
func (s *Store) PopScope() {
	s.mu.Lock()
	if len(s.scopes) <= 1 {
		s.mu.Unlock()
		s.sanity("attempted to pop the global scope")
		return
	}
	popped := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	if popped.hasExports {
		s.exportedEnvDirty = true
	}
	s.mu.Unlock()
}

// internalFind walks the scope stack per spec §4.A's lookup rule,
// jumping from a shadowing scope directly to global. It returns the
// owning scope node and entry, or (nil, nil) if not found in any scope.
func (s *Store) internalFind(name string) (*scopeNode, *entry) {
	i := len(s.scopes) - 1
	for i >= 0 {
		node := s.scopes[i]
		if e, ok := node.vars[name]; ok {
			return node, e
		}
		if node.shadowing && i != 0 {
			i = 0
			continue
		}
		i--
	}
	return nil, nil
}

// Set implements spec §4.A "set".
func (s *Store) Set(name string, values Values, mode Mode) SetResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode&User != 0 && s.readOnly[name] {
		return ReadOnly
	}

	if name == "umask" {
		return s.setUmaskLocked(values)
	}

	values = canonicalizeIfPath(name, values)
	if len(values) == 0 {
		values = Values{emptySentinel}
	}

	target, prevExported, isNewEntry := s.resolveTargetLocked(name, mode)
	exported := s.resolveExportLocked(mode, prevExported)

	if mode&Universal != 0 {
		s.universal[name] = &entry{values: values, exported: exported}
	} else {
		target.vars[name] = &entry{values: values, exported: exported}
		if exported {
			target.hasExports = true
		} else if !isNewEntry {
			target.recomputeHasExports()
		}
	}

	if exported || prevExported {
		s.exportedEnvDirty = true
	}

	s.reactToNameLocked(name)
	s.fireVariableEventLocked("SET", name)
	return OK
}

// resolveTargetLocked implements the scope-inference rule: explicit
// LOCAL/GLOBAL win; otherwise update wherever the name already lives,
// else create in the innermost shadowing scope (spec §4.A "set").
func (s *Store) resolveTargetLocked(name string, mode Mode) (target *scopeNode, prevExported bool, isNew bool) {
	if mode&Local != 0 {
		return s.top(), s.priorExportLocked(name), !s.existsInNodeLocked(s.top(), name)
	}
	if mode&Global != 0 {
		return s.global(), s.priorExportLocked(name), !s.existsInNodeLocked(s.global(), name)
	}

	if node, e := s.internalFind(name); node != nil {
		return node, e.exported, false
	}
	if e, ok := s.universal[name]; ok {
		return s.global(), e.exported, false
	}

	// Create in the innermost shadowing scope, else global.
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i].shadowing {
			return s.scopes[i], false, true
		}
	}
	return s.global(), false, true
}

func (s *Store) existsInNodeLocked(n *scopeNode, name string) bool {
	_, ok := n.vars[name]
	return ok
}

func (s *Store) priorExportLocked(name string) bool {
	if node, e := s.internalFind(name); node != nil {
		return e.exported
	}
	if e, ok := s.universal[name]; ok {
		return e.exported
	}
	return false
}

func (s *Store) resolveExportLocked(mode Mode, prevExported bool) bool {
	switch {
	case mode&Export != 0:
		return true
	case mode&Unexport != 0:
		return false
	default:
		return prevExported
	}
}

// canonicalizeIfPath normalizes PWD/HOME per spec §4.A.
func canonicalizeIfPath(name string, values Values) Values {
	if (name != "PWD" && name != "HOME") || len(values) == 0 {
		return values
	}
	out := make(Values, len(values))
	copy(out, values)
	if out[0] != "" {
		out[0] = filepath.Clean(out[0])
	}
	return out
}

// Get implements spec §4.A "get".
func (s *Store) Get(name string) (Values, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fn, ok := electricGetters[name]; ok {
		return fn(s)
	}

	if node, e := s.internalFind(name); node != nil {
		return externalize(e.values), true
	}
	if e, ok := s.universal[name]; ok {
		return externalize(e.values), true
	}
	return nil, false
}

// Remove implements spec §4.A "remove".
func (s *Store) Remove(name string, mode Mode) SetResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode&User != 0 && s.readOnly[name] {
		return ReadOnly
	}

	if mode&Universal != 0 {
		e, ok := s.universal[name]
		if !ok {
			return NotFound
		}
		delete(s.universal, name)
		if e.exported {
			s.exportedEnvDirty = true
		}
		s.reactToNameLocked(name)
		s.fireVariableEventLocked("ERASE", name)
		return OK
	}

	if mode&Local != 0 {
		if e, ok := s.top().vars[name]; ok {
			delete(s.top().vars, name)
			if e.exported {
				s.exportedEnvDirty = true
			}
			s.top().recomputeHasExports()
			s.reactToNameLocked(name)
			s.fireVariableEventLocked("ERASE", name)
			return OK
		}
		return NotFound
	}
	if mode&Global != 0 {
		if e, ok := s.global().vars[name]; ok {
			delete(s.global().vars, name)
			if e.exported {
				s.exportedEnvDirty = true
			}
			s.global().recomputeHasExports()
			s.reactToNameLocked(name)
			s.fireVariableEventLocked("ERASE", name)
			return OK
		}
		return NotFound
	}

	if node, e := s.internalFind(name); node != nil {
		delete(node.vars, name)
		if e.exported {
			s.exportedEnvDirty = true
		}
		node.recomputeHasExports()
		s.reactToNameLocked(name)
		s.fireVariableEventLocked("ERASE", name)
		return OK
	}
	if e, ok := s.universal[name]; ok {
		delete(s.universal, name)
		if e.exported {
			s.exportedEnvDirty = true
		}
		s.reactToNameLocked(name)
		s.fireVariableEventLocked("ERASE", name)
		return OK
	}
	return NotFound
}

// Exists implements spec §4.A "exists".
func (s *Store) Exists(name string, mode Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := electricGetters[name]; ok {
		return true
	}

	check := func(e *entry) bool {
		if mode&Export != 0 && !e.exported {
			return false
		}
		if mode&Unexport != 0 && e.exported {
			return false
		}
		return true
	}

	if mode&Local != 0 {
		e, ok := s.top().vars[name]
		return ok && check(e)
	}
	if mode&Global != 0 {
		e, ok := s.global().vars[name]
		return ok && check(e)
	}
	if mode&Universal != 0 {
		e, ok := s.universal[name]
		return ok && check(e)
	}

	if _, e := s.internalFind(name); e != nil {
		return check(e)
	}
	if e, ok := s.universal[name]; ok {
		return check(e)
	}
	return false
}

// Names implements spec §4.A "names". Electric names are never included
// (spec invariant 5: umask is never present in names()).
func (s *Store) Names(mode Mode) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	add := func(n string, e *entry) {
		if mode&Export != 0 && !e.exported {
			return
		}
		if mode&Unexport != 0 && e.exported {
			return
		}
		seen[n] = true
	}

	sm := mode.scopeMask()
	includeAll := sm == 0

	if includeAll || mode&Local != 0 {
		for n, e := range s.top().vars {
			add(n, e)
		}
	}
	if includeAll || mode&Global != 0 {
		for n, e := range s.global().vars {
			add(n, e)
		}
	}
	if includeAll || mode&Universal != 0 {
		for n, e := range s.universal {
			add(n, e)
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Store) reactToNameLocked(name string) {
	if isLocaleName(name) {
		s.reapplyLocaleLocked()
	}
	if strings.HasPrefix(name, "fish_color_") && s.hooks.OnColorRefresh != nil {
		s.hooks.OnColorRefresh()
	}
	if name == "fish_term256" && s.hooks.On256Detect != nil {
		s.hooks.On256Detect()
	}
}

func (s *Store) fireVariableEventLocked(action, name string) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Fire(event.Event{
		Descriptor: event.Descriptor{Kind: event.KindVariable, Name: name},
		Args:       []string{"VARIABLE", action, name},
	})
}

// SetStatus records the last command's shell status, backing the
// electric "status" variable.
func (s *Store) SetStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = code
}
