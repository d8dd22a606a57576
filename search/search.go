// Package search runs text searches across a document's pages.
//
// A Coordinator owns at most one live search. Starting a new search
// supersedes the previous one: its context is cancelled, its event
// channel closes, and none of its still-undelivered matches are ever
// surfaced. Pages are scanned in ascending original-index order, so a
// search over a reordered document returns the same results in the
// same order as over the untouched one; pages removed from the visual
// order are simply not in the scanned set. Cancellation is not an
// error condition, it is the expected end of every search but the
// last.
package search

import (
	"context"
	"sort"
	"sync"
	"unicode"

	"github.com/tsawler/lectern/logging"
)

// TextProvider hands the coordinator page text by original index. The
// engine backs this with extraction from the open document, falling
// back to OCR where the format has no text layer.
type TextProvider interface {
	PageText(ctx context.Context, original int) (string, error)
}

// Result is one match.
type Result struct {
	PageNumber int    // original index of the page
	Offset     int    // rune offset of the match in the page text
	Snippet    string // match with surrounding context
}

// Progress reports how far a search has come.
type Progress struct {
	PagesScanned int
	TotalPages   int
}

// Options tunes a single search.
type Options struct {
	CaseSensitive bool
	// MaxResults stops the search early once reached. Zero means
	// unlimited.
	MaxResults int
	// ContextRunes is how much text to keep around a match in its
	// snippet, per side. Zero means DefaultContextRunes.
	ContextRunes int
}

// DefaultContextRunes is the snippet context per side of a match.
const DefaultContextRunes = 40

// EventKind labels events on a search's channel.
type EventKind int

const (
	EventMatch EventKind = iota
	EventProgress
	EventDone
)

// Event is one update from a running search. Match is set for
// EventMatch, Progress for EventProgress and EventDone.
type Event struct {
	Kind     EventKind
	Match    Result
	Progress Progress
}

// Coordinator runs searches for one document view.
type Coordinator struct {
	provider TextProvider
	log      logging.Logger

	mu   sync.Mutex
	live *Search
}

// NewCoordinator creates a coordinator over the given text source. A
// nil log discards messages.
func NewCoordinator(provider TextProvider, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	return &Coordinator{provider: provider, log: log}
}

// Search starts a new search over the given original indices,
// superseding any search still in flight. The indices may arrive in
// visual order; they are scanned ascending. The returned handle is
// live immediately; consume Events or call Wait.
func (c *Coordinator) Search(ctx context.Context, query string, pages []int, opts Options) *Search {
	if opts.ContextRunes <= 0 {
		opts.ContextRunes = DefaultContextRunes
	}

	scan := make([]int, 0, len(pages))
	seen := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		if p < 1 {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		scan = append(scan, p)
	}
	sort.Ints(scan)

	sctx, cancel := context.WithCancel(ctx)
	s := &Search{
		Query:    query,
		cancel:   cancel,
		events:   make(chan Event, 16),
		finished: make(chan struct{}),
		progress: Progress{TotalPages: len(scan)},
		cursor:   -1,
	}

	c.mu.Lock()
	if c.live != nil {
		c.live.cancelSearch()
	}
	c.live = s
	c.mu.Unlock()

	if query == "" {
		s.finish()
		return s
	}

	go c.run(sctx, s, scan, opts)
	return s
}

// Live returns the most recently started search, or nil.
func (c *Coordinator) Live() *Search {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Cancel stops the live search, if any.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	live := c.live
	c.mu.Unlock()
	if live != nil {
		live.cancelSearch()
	}
}

func (c *Coordinator) run(ctx context.Context, s *Search, scan []int, opts Options) {
	needle := []rune(s.Query)
	if !opts.CaseSensitive {
		lowerRunes(needle)
	}

	for _, page := range scan {
		// Supersession and cancellation take effect between pages.
		if ctx.Err() != nil {
			s.abandon()
			return
		}

		text, err := c.provider.PageText(ctx, page)

		// A page that finished extracting after cancellation must not
		// leak its matches.
		if ctx.Err() != nil {
			s.abandon()
			return
		}
		if err != nil {
			c.log.Warn("search skipping page", "page", page, "error", err)
			if !s.step(ctx, page, nil, needle, opts) {
				return
			}
			continue
		}
		if !s.step(ctx, page, []rune(text), needle, opts) {
			return
		}
		if opts.MaxResults > 0 && s.resultCount() >= opts.MaxResults {
			break
		}
	}
	s.finish()
}

// Search is one running or completed search.
type Search struct {
	Query string

	cancel   context.CancelFunc
	events   chan Event
	finished chan struct{}

	mu        sync.Mutex
	results   []Result
	progress  Progress
	cursor    int // index of the current match, -1 before Next or Prev
	done      bool
	cancelled bool
	closed    bool
}

// Events is the search's update stream. It closes when the search
// completes or is superseded; a close without a prior EventDone means
// the search was cancelled. The live search's events must be drained:
// once the buffer fills, scanning pauses until the consumer catches up
// or the search is superseded.
func (s *Search) Events() <-chan Event { return s.events }

// Wait blocks until the search has completed or been cancelled. It
// does not consume events; pair it with an Events drain.
func (s *Search) Wait() { <-s.finished }

// Results returns the matches delivered so far, ascending by page
// number and then by offset.
func (s *Search) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Progress returns the scan position.
func (s *Search) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Done reports whether the search ran to completion.
func (s *Search) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Cancelled reports whether the search was stopped before completion.
func (s *Search) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Next advances to the next match and returns it, wrapping past the
// last match back to the first. It returns false while there are no
// matches.
func (s *Search) Next() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return Result{}, false
	}
	s.cursor = (s.cursor + 1) % len(s.results)
	return s.results[s.cursor], true
}

// Prev steps back to the previous match and returns it, wrapping from
// the first match to the last. It returns false while there are no
// matches.
func (s *Search) Prev() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return Result{}, false
	}
	if s.cursor <= 0 {
		s.cursor = len(s.results) - 1
	} else {
		s.cursor--
	}
	return s.results[s.cursor], true
}

// Current returns the match the cursor rests on. It returns false
// before the first Next or Prev call.
func (s *Search) Current() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 || s.cursor >= len(s.results) {
		return Result{}, false
	}
	return s.results[s.cursor], true
}

// step scans one page's text, records and emits its matches, and emits
// a progress event. It returns false when the search was cancelled
// while emitting.
func (s *Search) step(ctx context.Context, page int, text, needle []rune, opts Options) bool {
	for _, off := range findAll(text, needle, opts.CaseSensitive) {
		r := Result{
			PageNumber: page,
			Offset:     off,
			Snippet:    snippet(text, off, len(needle), opts.ContextRunes),
		}
		s.mu.Lock()
		s.results = append(s.results, r)
		count := len(s.results)
		s.mu.Unlock()

		if !s.emit(ctx, Event{Kind: EventMatch, Match: r}) {
			s.abandon()
			return false
		}
		if opts.MaxResults > 0 && count >= opts.MaxResults {
			break
		}
	}

	s.mu.Lock()
	s.progress.PagesScanned++
	p := s.progress
	s.mu.Unlock()

	if !s.emit(ctx, Event{Kind: EventProgress, Progress: p}) {
		s.abandon()
		return false
	}
	return true
}

func (s *Search) resultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// emit delivers an event unless the search is cancelled first. A
// superseded search's consumer may have stopped reading, so sends
// never block past cancellation.
func (s *Search) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Search) cancelSearch() {
	s.cancel()
	s.mu.Lock()
	already := s.done || s.cancelled
	if !already {
		s.cancelled = true
	}
	s.mu.Unlock()
}

// abandon closes the channel after cancellation, delivering nothing
// further.
func (s *Search) abandon() {
	s.mu.Lock()
	s.cancelled = true
	closed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !closed {
		close(s.events)
		close(s.finished)
	}
}

// finish marks completion and closes the channel after a final
// EventDone. A search cancelled in its last moments closes silently
// instead.
func (s *Search) finish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancelled {
		s.closed = true
		s.mu.Unlock()
		close(s.events)
		close(s.finished)
		return
	}
	s.done = true
	s.closed = true
	p := s.progress
	s.mu.Unlock()

	s.events <- Event{Kind: EventDone, Progress: p}
	close(s.events)
	close(s.finished)
}

// ============================================================================
// Matching
// ============================================================================

// findAll returns the rune offsets of every non-overlapping occurrence
// of needle in text. Offsets index the original text, so they remain
// valid for positioning regardless of case folding.
func findAll(text, needle []rune, caseSensitive bool) []int {
	if len(needle) == 0 || len(text) < len(needle) {
		return nil
	}

	haystack := text
	if !caseSensitive {
		haystack = make([]rune, len(text))
		copy(haystack, text)
		lowerRunes(haystack)
	}

	var offsets []int
	for i := 0; i+len(needle) <= len(haystack); {
		if runesEqual(haystack[i:i+len(needle)], needle) {
			offsets = append(offsets, i)
			i += len(needle)
			continue
		}
		i++
	}
	return offsets
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lowerRunes(rs []rune) {
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
}

// snippet cuts a context window around a match.
func snippet(text []rune, off, matchLen, contextRunes int) string {
	start := off - contextRunes
	if start < 0 {
		start = 0
	}
	end := off + matchLen + contextRunes
	if end > len(text) {
		end = len(text)
	}
	return string(text[start:end])
}
