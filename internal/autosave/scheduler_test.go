package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chronicle/editor/internal/docstore"
)

type fakeEditor struct {
	mu      sync.Mutex
	content string
}

func (e *fakeEditor) SerializedContent() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

func (e *fakeEditor) set(content string) {
	e.mu.Lock()
	e.content = content
	e.mu.Unlock()
}

type saveCall struct {
	docID   string
	content string
}

type fakeSaver struct {
	mu     sync.Mutex
	calls  []saveCall
	errs   []error
	during func()
}

func (f *fakeSaver) save(_ context.Context, docID, content string) error {
	f.mu.Lock()
	f.calls = append(f.calls, saveCall{docID: docID, content: content})
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	during := f.during
	f.during = nil
	f.mu.Unlock()
	if during != nil {
		during()
	}
	return err
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSaver) last() saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeDrafts struct {
	mu      sync.Mutex
	saved   map[string]string
	cleared []string
}

func (f *fakeDrafts) SaveDraft(_ context.Context, docID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[docID] = content
	return nil
}

func (f *fakeDrafts) ClearDraft(_ context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, docID)
	delete(f.saved, docID)
	return nil
}

func (f *fakeDrafts) draft(docID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.saved[docID]
	return content, ok
}

// blockSave makes the next save wait for release. started is closed once the
// save has been handed its content.
func blockSave(saver *fakeSaver) (started chan struct{}, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	saver.mu.Lock()
	saver.during = func() {
		close(started)
		<-release
	}
	saver.mu.Unlock()
	return started, release
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newTestScheduler(opts Options) (*Scheduler, *fakeEditor, *fakeSaver, *ManualClock) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	editor := &fakeEditor{content: "<p>loaded</p>"}
	saver := &fakeSaver{}
	opts.Clock = clock
	s := New(saver.save, editor, opts)
	s.Activate("doc-1", "<p>loaded</p>", true)
	return s, editor, saver, clock
}

func TestIdenticalContentSavesOnce(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})

	editor.set("<p>edited</p>")
	s.ContentChanged()
	s.ContentChanged()
	clock.Advance(DefaultDelay)
	if saver.count() != 1 {
		t.Fatalf("expected 1 save, got %d", saver.count())
	}

	s.ContentChanged()
	clock.Advance(10 * DefaultDelay)
	if saver.count() != 1 {
		t.Fatalf("unchanged content must not be saved again, got %d saves", saver.count())
	}
	if got := s.State().Status; got != StatusSaved {
		t.Fatalf("status = %s", got)
	}
}

func TestLoadedContentIsNotSaved(t *testing.T) {
	s, _, saver, clock := newTestScheduler(Options{})
	s.ContentChanged()
	if clock.Pending() != 0 {
		t.Fatal("no timer expected for unchanged content")
	}
	clock.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("expected no saves, got %d", saver.count())
	}
}

func TestDebounceRearmsOnEachChange(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})

	editor.set("<p>a</p>")
	s.ContentChanged()
	clock.Advance(time.Second)
	editor.set("<p>ab</p>")
	s.ContentChanged()
	clock.Advance(time.Second)
	if saver.count() != 0 {
		t.Fatalf("save fired before the quiet period, got %d", saver.count())
	}
	if clock.Pending() != 1 {
		t.Fatalf("expected exactly one armed timer, got %d", clock.Pending())
	}
	clock.Advance(200 * time.Millisecond)
	if saver.count() != 1 || saver.last().content != "<p>ab</p>" {
		t.Fatalf("expected one save of the latest content, got %+v", saver.calls)
	}
}

func TestFailedSaveRetriesAfterBackoff(t *testing.T) {
	var statuses []Status
	s, editor, saver, clock := newTestScheduler(Options{OnStatus: func(st State) { statuses = append(statuses, st.Status) }})
	saver.errs = []error{errors.New("boom"), errors.New("boom again")}

	editor.set("<p>x</p>")
	s.ContentChanged()
	clock.Advance(DefaultDelay)
	if got := s.State(); got.Status != StatusFailed || got.Message() != "Save failed, retrying…" {
		t.Fatalf("unexpected state %+v", got)
	}
	clock.Advance(DefaultRetryDelay)
	clock.Advance(DefaultRetryDelay)
	if saver.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", saver.count())
	}
	if s.State().Status != StatusSaved {
		t.Fatalf("status = %s", s.State().Status)
	}
	clock.Advance(time.Minute)
	if saver.count() != 3 {
		t.Fatalf("no retries expected after success, got %d", saver.count())
	}
	if statuses[0] != StatusPending || statuses[len(statuses)-1] != StatusSaved {
		t.Fatalf("unexpected status sequence %v", statuses)
	}
}

func TestSessionExpiryStopsSaving(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	saver.errs = []error{fmt.Errorf("put doc-1: %w", docstore.ErrUnauthorized)}

	editor.set("<p>one</p>")
	s.ContentChanged()
	clock.Advance(DefaultDelay)
	if !s.Expired() || s.State().Status != StatusExpired {
		t.Fatalf("expected expired state, got %+v", s.State())
	}

	editor.set("<p>two</p>")
	s.ContentChanged()
	clock.Advance(time.Minute)
	if saver.count() != 1 {
		t.Fatalf("expected no saves while expired, got %d", saver.count())
	}

	s.ClearExpired()
	clock.Advance(DefaultDelay)
	if saver.count() != 2 || saver.last().content != "<p>two</p>" {
		t.Fatalf("expected save after clearing expiry, got %+v", saver.calls)
	}
}

type expiredFlag struct{ expired bool }

func (e *expiredFlag) Expired() bool { return e.expired }

func TestExternalSessionExpiryGatesChanges(t *testing.T) {
	flag := &expiredFlag{expired: true}
	s, editor, saver, clock := newTestScheduler(Options{Session: flag})
	editor.set("<p>new</p>")
	s.ContentChanged()
	clock.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("expected no saves, got %d", saver.count())
	}
	flag.expired = false
	s.ContentChanged()
	clock.Advance(DefaultDelay)
	if saver.count() != 1 {
		t.Fatalf("expected 1 save, got %d", saver.count())
	}
}

func TestEditsDuringSaveAreNotLost(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	editor.set("<p>v1</p>")
	saver.during = func() {
		editor.set("<p>v2</p>")
		s.ContentChanged()
	}
	s.ContentChanged()
	clock.Advance(DefaultDelay)
	if saver.count() != 1 || saver.last().content != "<p>v1</p>" {
		t.Fatalf("unexpected first save %+v", saver.calls)
	}
	if !s.Dirty() {
		t.Fatal("expected v2 to be pending")
	}
	clock.Advance(DefaultDelay)
	if saver.count() != 2 || saver.last().content != "<p>v2</p>" {
		t.Fatalf("expected v2 to be saved, got %+v", saver.calls)
	}
	if s.Dirty() {
		t.Fatal("expected clean state")
	}
}

func TestSwitchingDocumentDropsPendingSave(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	editor.set("<p>draft</p>")
	s.ContentChanged()
	s.Activate("doc-2", "<p>draft</p>", true)
	clock.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("expected no saves, got %d", saver.count())
	}
}

func TestReadOnlyNeverSaves(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	s.Activate("doc-1", "<p>loaded</p>", false)
	editor.set("<p>changed</p>")
	s.ContentChanged()
	<-s.Flush()
	clock.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("expected no saves, got %d", saver.count())
	}
}

func TestFlushSavesImmediately(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	editor.set("<p>unload</p>")
	s.ContentChanged()
	<-s.Flush()
	if saver.count() != 1 || saver.last().content != "<p>unload</p>" {
		t.Fatalf("expected flushed save, got %+v", saver.calls)
	}
	if clock.Pending() != 0 {
		t.Fatalf("expected debounce to be cancelled, %d timers armed", clock.Pending())
	}
}

func TestDraftsAndSavedHook(t *testing.T) {
	drafts := &fakeDrafts{}
	var saved []string
	s, editor, _, clock := newTestScheduler(Options{
		Drafts:  drafts,
		OnSaved: func(docID, content string) { saved = append(saved, docID+"="+content) },
	})
	editor.set("<p>journal</p>")
	s.ContentChanged()
	if drafts.saved["doc-1"] != "<p>journal</p>" {
		t.Fatalf("expected draft to be written, got %v", drafts.saved)
	}
	clock.Advance(DefaultDelay)
	if len(drafts.cleared) != 1 || len(drafts.saved) != 0 {
		t.Fatalf("expected draft to be cleared, got %+v", drafts)
	}
	if len(saved) != 1 || saved[0] != "doc-1=<p>journal</p>" {
		t.Fatalf("unexpected saved hook calls %v", saved)
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	if Hash("<p>a</p>") == Hash("<p>b</p>") {
		t.Fatal("expected different hashes")
	}
	if Hash("x") != Hash("x") || len(Hash("x")) != 32 {
		t.Fatal("expected stable 32 char hash")
	}
}

func TestFlushWaitsForSaveInFlight(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	started, release := blockSave(saver)

	editor.set("<p>v1</p>")
	s.ContentChanged()
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(DefaultDelay)
	}()
	waitFor(t, started, "first save")

	editor.set("<p>v2</p>")
	s.ContentChanged()
	flushed := s.Flush()
	switched := make(chan struct{})
	go func() {
		defer close(switched)
		<-flushed
		s.Activate("doc-2", "<p>other</p>", true)
	}()

	close(release)
	waitFor(t, advanced, "timer")
	waitFor(t, switched, "flush before switching")

	if saver.count() != 2 {
		t.Fatalf("expected 2 saves, got %+v", saver.calls)
	}
	if got := saver.last(); got.docID != "doc-1" || got.content != "<p>v2</p>" {
		t.Fatalf("expected doc-1 v2 to be saved, got %+v", got)
	}
}

func TestNewerDraftSurvivesStaleSave(t *testing.T) {
	drafts := &fakeDrafts{}
	s, editor, saver, clock := newTestScheduler(Options{Drafts: drafts})
	started, release := blockSave(saver)

	editor.set("<p>v1</p>")
	s.ContentChanged()
	advanced := make(chan struct{})
	go func() {
		defer close(advanced)
		clock.Advance(DefaultDelay)
	}()
	waitFor(t, started, "first save")

	editor.set("<p>v2</p>")
	s.ContentChanged()
	s.Activate("doc-2", "<p>other</p>", true)
	close(release)
	waitFor(t, advanced, "timer")

	if got, ok := drafts.draft("doc-1"); !ok || got != "<p>v2</p>" {
		t.Fatalf("expected the v2 draft to be kept, got %q (present %v)", got, ok)
	}
	if saver.count() != 1 {
		t.Fatalf("expected only the v1 save, got %+v", saver.calls)
	}
}

func TestPauseHoldsSavesUntilResume(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	editor.set("<p>before</p>")
	s.ContentChanged()

	resume := s.Pause()
	editor.set("<p>during</p>")
	s.ContentChanged()
	clock.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("expected no saves while paused, got %d", saver.count())
	}

	resume()
	clock.Advance(DefaultDelay)
	if saver.count() != 1 || saver.last().content != "<p>during</p>" {
		t.Fatalf("expected the latest content after resume, got %+v", saver.calls)
	}
}

func TestResumeAfterSwitchIsNoop(t *testing.T) {
	s, editor, saver, clock := newTestScheduler(Options{})
	resume := s.Pause()
	s.Activate("doc-2", "<p>loaded</p>", true)
	resume()

	editor.set("<p>doc-2 edit</p>")
	s.ContentChanged()
	clock.Advance(DefaultDelay)
	if saver.count() != 1 || saver.last().docID != "doc-2" {
		t.Fatalf("expected doc-2 to save normally, got %+v", saver.calls)
	}
}
