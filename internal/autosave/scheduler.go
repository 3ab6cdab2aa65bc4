// Package autosave persists editor content after a quiet period, skipping
// unchanged content, retrying failures and stopping once the session expires.
package autosave

import (
	"context"
	"encoding/hex"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"chronicle/editor/internal/docstore"
)

const (
	DefaultDelay      = 1200 * time.Millisecond
	DefaultRetryDelay = 2 * time.Second

	draftTimeout = 2 * time.Second
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// Content is the serialized editor snapshot being saved.
type Content interface {
	SerializedContent() string
}

// SaveFunc writes content for docID. It is called with at most one call in
// flight per scheduler.
type SaveFunc func(ctx context.Context, docID, content string) error

// DraftJournal keeps unsaved content somewhere that outlives the process.
type DraftJournal interface {
	SaveDraft(ctx context.Context, docID, content string) error
	ClearDraft(ctx context.Context, docID string) error
}

// SessionState reports an expiry observed outside the scheduler, for example
// by a store guard.
type SessionState interface {
	Expired() bool
}

type Options struct {
	Delay      time.Duration
	RetryDelay time.Duration
	Clock      Clock
	Drafts     DraftJournal
	Session    SessionState
	// OnStatus is called after every status transition, outside the lock.
	OnStatus func(State)
	// OnSaved is called after each successful save.
	OnSaved func(docID, content string)
}

// State is a snapshot of the scheduler for status displays.
type State struct {
	DocID   string
	Status  Status
	Err     error
	SavedAt time.Time
}

// Message is the user-facing status line.
func (st State) Message() string {
	switch st.Status {
	case StatusPending:
		return "Unsaved changes"
	case StatusSaving:
		return "Saving…"
	case StatusSaved:
		return "Saved"
	case StatusFailed:
		return "Save failed, retrying…"
	case StatusExpired:
		return "Session expired, changes are not being saved"
	default:
		return ""
	}
}

// Hash is the content digest used to skip saving unchanged snapshots.
func Hash(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}

type Scheduler struct {
	save    SaveFunc
	content Content
	opts    Options

	mu        sync.Mutex
	gen       uint64
	docID     string
	writable  bool
	expired   bool
	savedHash string
	timer     Timer
	inFlight  bool
	saving    chan struct{}
	paused    bool
	drafted   map[string]string
	state     State
}

func New(save SaveFunc, content Content, opts Options) *Scheduler {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Scheduler{
		save:    save,
		content: content,
		opts:    opts,
		drafted: make(map[string]string),
		state:   State{Status: StatusIdle},
	}
}

// Activate switches the scheduler to docID whose stored content is loaded.
// Pending work for the previous document is dropped.
func (s *Scheduler) Activate(docID, loaded string, writable bool) {
	s.mu.Lock()
	s.stopTimerLocked()
	s.gen++
	s.docID = docID
	s.writable = writable
	s.savedHash = Hash(loaded)
	s.inFlight = false
	s.paused = false
	state := s.setLocked(StatusIdle, nil)
	s.mu.Unlock()
	s.notify(state)
}

// Deactivate drops the active document without saving.
func (s *Scheduler) Deactivate() {
	s.Activate("", "", false)
}

// Pause holds back saves of the active document until resume is called.
// Changes made meanwhile are picked up on resume.
func (s *Scheduler) Pause() (resume func()) {
	s.mu.Lock()
	s.paused = true
	s.stopTimerLocked()
	gen := s.gen
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.paused = false
		s.mu.Unlock()
		s.ContentChanged()
	}
}

// ContentChanged is the editor's change callback. Unchanged content is
// ignored; otherwise the debounce timer is re-armed.
func (s *Scheduler) ContentChanged() {
	content := s.content.SerializedContent()
	hash := Hash(content)

	s.mu.Lock()
	if !s.eligibleLocked() || hash == s.savedHash {
		s.mu.Unlock()
		return
	}
	docID := s.docID
	s.armLocked(s.opts.Delay)
	state := s.state
	if !s.inFlight {
		state = s.setLocked(StatusPending, nil)
	}
	s.drafted[docID] = hash
	s.mu.Unlock()

	s.notify(state)
	s.writeDraft(docID, content)
}

// Flush cancels the debounce and attempts one save now. A save already in
// flight is waited for first, so the attempt carries the latest content. The
// returned channel closes when the attempt finishes; callers may ignore it.
func (s *Scheduler) Flush() <-chan struct{} {
	done := make(chan struct{})
	s.mu.Lock()
	s.stopTimerLocked()
	gen := s.gen
	var saving chan struct{}
	if s.inFlight {
		saving = s.saving
	}
	s.mu.Unlock()
	go func() {
		defer close(done)
		if saving != nil {
			<-saving
		}
		s.fire(gen)
	}()
	return done
}

// ClearExpired re-enables saving after re-authentication and schedules a save
// if the editor holds unsaved content.
func (s *Scheduler) ClearExpired() {
	s.mu.Lock()
	s.expired = false
	state := s.setLocked(StatusIdle, nil)
	s.mu.Unlock()
	s.notify(state)
	s.ContentChanged()
}

// Expired reports whether saving is disabled by a session expiry.
func (s *Scheduler) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiredLocked()
}

// State returns the current status snapshot.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dirty reports whether the editor content differs from the last save.
func (s *Scheduler) Dirty() bool {
	hash := Hash(s.content.SerializedContent())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID != "" && hash != s.savedHash
}

func (s *Scheduler) fire(gen uint64) {
	content := s.content.SerializedContent()
	hash := Hash(content)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	if s.inFlight || !s.eligibleLocked() {
		s.mu.Unlock()
		return
	}
	if hash == s.savedHash {
		state := s.state
		if state.Status == StatusPending || state.Status == StatusFailed {
			state = s.setLocked(StatusSaved, nil)
		}
		s.mu.Unlock()
		s.notify(state)
		return
	}
	docID := s.docID
	s.inFlight = true
	saving := make(chan struct{})
	s.saving = saving
	state := s.setLocked(StatusSaving, nil)
	s.mu.Unlock()
	s.notify(state)

	err := s.save(context.Background(), docID, content)
	s.finish(gen, docID, content, hash, err)
	close(saving)
}

func (s *Scheduler) finish(gen uint64, docID, content, hash string, err error) {
	s.mu.Lock()
	current := gen == s.gen
	if current {
		s.inFlight = false
	}
	if err != nil {
		if !current {
			s.mu.Unlock()
			log.Printf("autosave: save %s failed after switching away: %v", docID, err)
			return
		}
		var state State
		if isExpiry(err) {
			s.expired = true
			s.stopTimerLocked()
			state = s.setLocked(StatusExpired, err)
		} else {
			log.Printf("autosave: save %s failed, retrying in %s: %v", docID, s.opts.RetryDelay, err)
			state = s.setLocked(StatusFailed, err)
			s.armLocked(s.opts.RetryDelay)
		}
		s.mu.Unlock()
		s.notify(state)
		return
	}

	var state State
	if current {
		s.savedHash = hash
		s.state.SavedAt = s.opts.Clock.Now()
		state = s.setLocked(StatusSaved, nil)
	}
	// A draft journaled after this snapshot is the only copy of newer content.
	drafted, ok := s.drafted[docID]
	stale := !ok || drafted == hash
	if stale {
		delete(s.drafted, docID)
	}
	s.mu.Unlock()

	if current {
		s.notify(state)
	}
	if stale {
		s.clearDraft(docID)
	}
	if s.opts.OnSaved != nil {
		s.opts.OnSaved(docID, content)
	}
	if current {
		// Edits made while the save was in flight get their own cycle.
		s.ContentChanged()
	}
}

func (s *Scheduler) eligibleLocked() bool {
	return s.docID != "" && s.writable && !s.paused && !s.expiredLocked()
}

func (s *Scheduler) expiredLocked() bool {
	if s.expired {
		return true
	}
	return s.opts.Session != nil && s.opts.Session.Expired()
}

func (s *Scheduler) armLocked(d time.Duration) {
	s.stopTimerLocked()
	gen := s.gen
	s.timer = s.opts.Clock.AfterFunc(d, func() { s.fire(gen) })
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) setLocked(status Status, err error) State {
	s.state = State{DocID: s.docID, Status: status, Err: err, SavedAt: s.state.SavedAt}
	return s.state
}

func (s *Scheduler) notify(state State) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(state)
	}
}

func (s *Scheduler) writeDraft(docID, content string) {
	if s.opts.Drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
	defer cancel()
	if err := s.opts.Drafts.SaveDraft(ctx, docID, content); err != nil {
		log.Printf("autosave: write draft %s: %v", docID, err)
	}
}

func (s *Scheduler) clearDraft(docID string) {
	if s.opts.Drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
	defer cancel()
	if err := s.opts.Drafts.ClearDraft(ctx, docID); err != nil {
		log.Printf("autosave: clear draft %s: %v", docID, err)
	}
}

func isExpiry(err error) bool {
	return errors.Is(err, docstore.ErrUnauthorized) || errors.Is(err, docstore.ErrSessionExpired)
}
