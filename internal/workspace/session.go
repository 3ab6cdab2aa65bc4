// Package workspace owns one editing session: the page list of a scope, the
// active page, the editor buffer and its autosave scheduler. All structural
// edits are applied locally first and then confirmed against the store.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chronicle/editor/internal/autosave"
	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/docstore"
	"chronicle/editor/internal/drafts"
	"chronicle/editor/internal/history"
	"chronicle/editor/internal/move"
	"chronicle/editor/internal/rbac"
	"chronicle/editor/internal/reconcile"
	"chronicle/editor/internal/tree"
)

var (
	ErrReadOnly     = errors.New("scope is read-only")
	ErrRootLocked   = errors.New("root page cannot be deleted")
	ErrUnknownPage  = errors.New("page not found")
	ErrInvalidScope = errors.New("scope requires a job or folder id")
)

const draftLookupTimeout = 2 * time.Second

// DraftStore journals unsaved content and hands it back on open.
type DraftStore interface {
	autosave.DraftJournal
	LoadDraft(ctx context.Context, docID string) (drafts.Draft, bool, error)
}

// Indexer receives page changes for search. Calls must not block.
type Indexer interface {
	IndexPages(scopeID string, pages []doc.Doc)
	DeletePages(ids []string)
}

// Recorder keeps the saved history of page bodies.
type Recorder interface {
	Record(docID, content, author, message string) (history.Commit, bool, error)
}

type Options struct {
	Scope doc.Scope
	Perm  rbac.Perm
	// RequestedDocID is the page named by the embed token or URL. It is the
	// first fallback when the active page disappears.
	RequestedDocID string
	Editor         Editor
	Drafts         DraftStore
	Search         Indexer
	History        Recorder
	Author         string
	Delay          time.Duration
	RetryDelay     time.Duration
	Clock          autosave.Clock
	OnStatus       func(autosave.State)
}

type Session struct {
	store     *docstore.Guard
	opts      Options
	editor    Editor
	scheduler *autosave.Scheduler

	mu         sync.Mutex
	docs       []doc.Doc
	rootID     string
	activeID   string
	healed     []string
	loadErr    error
	loadSeq    uint64
	cancelLoad context.CancelFunc
	openSeq    uint64
	cancelOpen context.CancelFunc
	drag       *move.Gesture
}

// New builds a session over store. Every store call goes through a
// docstore.Guard so that a 401 disables writes for the rest of the session.
func New(store docstore.Store, opts Options) (*Session, error) {
	if !opts.Scope.Valid() {
		return nil, ErrInvalidScope
	}
	if opts.Clock == nil {
		opts.Clock = autosave.RealClock()
	}
	if opts.Editor == nil {
		opts.Editor = NewBuffer()
	}
	opts.Perm = rbac.Normalize(string(opts.Perm))

	s := &Session{
		store:  docstore.NewGuard(store),
		opts:   opts,
		editor: opts.Editor,
	}
	schedOpts := autosave.Options{
		Delay:      opts.Delay,
		RetryDelay: opts.RetryDelay,
		Clock:      opts.Clock,
		Session:    s.store,
		OnStatus:   opts.OnStatus,
		OnSaved:    s.recordHistory,
	}
	if opts.Drafts != nil {
		schedOpts.Drafts = opts.Drafts
	}
	s.scheduler = autosave.New(s.savePage, s.editor, schedOpts)
	s.editor.OnContentChanged(s.scheduler.ContentChanged)
	return s, nil
}

func (s *Session) Scope() doc.Scope {
	return s.opts.Scope
}

func (s *Session) Writable() bool {
	return rbac.CanWrite(s.opts.Perm)
}

func (s *Session) Expired() bool {
	return s.store.Expired() || s.scheduler.Expired()
}

// Refresh reloads the scope from the store, superseding any load still in
// flight. A writable scope gets its canonical root created when missing.
// When the active page is no longer visible the next candidate is opened.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	s.loadSeq++
	seq := s.loadSeq
	s.cancelLoad = cancel
	s.mu.Unlock()
	defer cancel()

	scopeID := s.opts.Scope.ID()
	raws, err := s.store.ListByScope(loadCtx, scopeID)
	if err != nil {
		if s.loadSuperseded(seq) {
			return nil
		}
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
		return fmt.Errorf("load pages: %w", err)
	}

	docs := reconcile.NormalizeAll(raws)
	canonical := s.opts.Scope.CanonicalRootID()
	if s.Writable() && canonical != "" {
		if _, ok := tree.ByID(docs)[canonical]; !ok {
			root, err := s.ensureRoot(loadCtx, canonical)
			if err != nil {
				log.Printf("workspace: create root %s: %v", canonical, err)
			} else {
				docs, _ = reconcile.MergeDoc(docs, root)
			}
		}
	}

	rootID := tree.ResolveRoot(docs, canonical)
	healed, report := reconcile.HealParents(docs, rootID)
	visible := tree.FilterUnderRoot(healed, rootID)

	s.mu.Lock()
	if seq != s.loadSeq {
		s.mu.Unlock()
		return nil
	}
	s.docs = visible
	s.rootID = rootID
	s.healed = report.HealedParents
	s.loadErr = nil
	current := s.activeID
	next := reconcile.EnsureActiveDocVisible(visible, rootID, current, s.opts.RequestedDocID)
	s.mu.Unlock()

	if len(report.HealedParents) > 0 {
		log.Printf("workspace: healed %d page parents in %s", len(report.HealedParents), scopeID)
	}
	s.index(visible...)

	if next != current {
		return s.Open(ctx, next)
	}
	return nil
}

func (s *Session) ensureRoot(ctx context.Context, rootID string) (doc.Doc, error) {
	patch := doc.Patch{}.
		WithTitle(doc.RootTitle).
		WithJob(s.opts.Scope.ID()).
		WithPosition(0).
		WithHTML(doc.BlankHTML)
	raw, err := s.store.Put(ctx, rootID, patch)
	if err != nil {
		return doc.Doc{}, err
	}
	root := reconcile.Normalize(raw, 0)
	root.ParentID = nil
	return root, nil
}

// Open makes id the active page and loads its body into the editor. A page
// that does not exist yet opens blank. A journaled draft that differs from
// the stored body is restored and scheduled for saving. Opening another page
// before this one resolves discards this one's result.
func (s *Session) Open(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	openCtx, cancel := context.WithCancel(ctx)
	s.openSeq++
	seq := s.openSeq
	s.cancelOpen = cancel
	previous := s.activeID
	s.mu.Unlock()
	defer cancel()

	if previous != "" && previous != id && s.scheduler.Dirty() {
		select {
		case <-s.scheduler.Flush():
		case <-openCtx.Done():
		}
	}

	if id == "" {
		s.mu.Lock()
		if seq == s.openSeq {
			s.activeID = ""
		}
		s.mu.Unlock()
		s.scheduler.Deactivate()
		s.editor.SetContent(doc.BlankHTML, false)
		return nil
	}

	content := doc.BlankHTML
	raw, err := s.store.Get(openCtx, id)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
	case err != nil:
		if s.openSuperseded(seq) {
			return nil
		}
		return fmt.Errorf("open page %s: %w", id, err)
	default:
		if html := reconcile.Normalize(raw, 0).HTMLSnapshot; html != "" {
			content = html
		}
	}
	draft := s.pendingDraft(openCtx, id, content)

	s.mu.Lock()
	if seq != s.openSeq {
		s.mu.Unlock()
		return nil
	}
	s.activeID = id
	s.mu.Unlock()

	s.editor.SetContent(content, false)
	s.scheduler.Activate(id, content, s.Writable())
	if draft != "" {
		log.Printf("workspace: restoring unsaved draft for %s", id)
		s.editor.SetContent(draft, true)
	}
	return nil
}

func (s *Session) pendingDraft(ctx context.Context, id, loaded string) string {
	if s.opts.Drafts == nil || !s.Writable() {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, draftLookupTimeout)
	defer cancel()
	draft, ok, err := s.opts.Drafts.LoadDraft(ctx, id)
	if err != nil {
		log.Printf("workspace: load draft %s: %v", id, err)
		return ""
	}
	if !ok || autosave.Hash(draft.Content) == autosave.Hash(loaded) {
		return ""
	}
	return draft.Content
}

// Edit replaces the editor content as if the user typed it.
func (s *Session) Edit(content string) {
	s.editor.SetContent(content, true)
}

// Content is the current editor body.
func (s *Session) Content() string {
	return s.editor.SerializedContent()
}

// Flush saves pending content now. The channel closes when the attempt ends.
func (s *Session) Flush() <-chan struct{} {
	return s.scheduler.Flush()
}

func (s *Session) Status() autosave.State {
	return s.scheduler.State()
}

// ClearExpired re-enables writes after the user re-authenticated.
func (s *Session) ClearExpired() {
	s.store.ClearExpired()
	s.scheduler.ClearExpired()
}

// Create adds a page under parentID. In root mode a nil parent means the
// root. The page is visible locally before the store confirms it and is
// dropped again if the store refuses it.
func (s *Session) Create(ctx context.Context, parentID *string, title string) (doc.Doc, error) {
	if err := s.checkWritable(); err != nil {
		return doc.Doc{}, err
	}

	s.mu.Lock()
	page, err := reconcile.NewPage(s.docs, s.rootID, parentID, title, s.opts.Scope.ID(), s.opts.Clock.Now())
	if err != nil {
		s.mu.Unlock()
		return doc.Doc{}, err
	}
	s.docs = append(doc.Clone(s.docs), page)
	s.mu.Unlock()

	patch := doc.Patch{}.
		WithTitle(page.Title).
		WithJob(page.JobID).
		WithPosition(page.Position).
		WithParent(page.ParentID).
		WithHTML(page.HTMLSnapshot)
	raw, err := s.store.Put(ctx, page.ID, patch)
	if err != nil {
		s.mu.Lock()
		s.docs = reconcile.RemoveClosure(s.docs, []string{page.ID})
		s.mu.Unlock()
		return doc.Doc{}, fmt.Errorf("create page: %w", err)
	}
	s.mergeSaved(raw)

	created, _ := s.Page(page.ID)
	s.index(created)
	return created, nil
}

// Rename sets a page title. A failed write reloads the scope.
func (s *Session) Rename(ctx context.Context, id, title string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return reconcile.ErrBlankTitle
	}
	title = doc.NormalizeTitle(title)

	s.mu.Lock()
	current, ok := tree.ByID(s.docs)[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownPage
	}
	if current.Title == title {
		s.mu.Unlock()
		return nil
	}
	renamed := current
	renamed.Title = title
	s.docs, _ = reconcile.MergeDoc(s.docs, renamed)
	s.mu.Unlock()

	raw, err := s.store.Put(ctx, id, doc.Patch{}.WithTitle(title))
	if err != nil {
		s.resync(ctx)
		return fmt.Errorf("rename page: %w", err)
	}
	s.mergeSaved(raw)
	if saved, ok := s.Page(id); ok {
		s.index(saved)
	}
	return nil
}

// Delete removes a page and all of its descendants. A page already gone from
// the store counts as deleted. When the active page is removed the session
// falls back to its parent, then the root, then the first remaining page.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	s.mu.Lock()
	if id == s.rootID {
		s.mu.Unlock()
		return ErrRootLocked
	}
	target, ok := tree.ByID(s.docs)[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownPage
	}
	closure := reconcile.DeleteClosure(s.docs, id)
	activeGone := containsID(closure, s.activeID)
	s.mu.Unlock()

	// A save landing during the delete would recreate the page through the
	// upsert, so saves wait until the outcome is known.
	resume := func() {}
	if activeGone {
		resume = s.scheduler.Pause()
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		s.resync(ctx)
		resume()
		return fmt.Errorf("delete page: %w", err)
	}
	if activeGone {
		s.scheduler.Deactivate()
	}
	gone := make(map[string]bool, len(closure))
	for _, removed := range deleted {
		gone[removed] = true
	}
	// The store cascades one level only; descendants go deepest first.
	for i := len(closure) - 1; i > 0; i-- {
		if gone[closure[i]] {
			continue
		}
		removed, err := s.store.Delete(ctx, closure[i])
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			log.Printf("workspace: delete descendant %s of %s: %v", closure[i], id, err)
			continue
		}
		for _, r := range removed {
			gone[r] = true
		}
	}

	s.mu.Lock()
	s.docs = reconcile.RemoveClosure(s.docs, closure)
	next := s.activeID
	if activeGone {
		next = reconcile.EnsureActiveDocVisible(s.docs, s.rootID, target.Parent())
	}
	s.mu.Unlock()

	if s.opts.Search != nil {
		s.opts.Search.DeletePages(closure)
	}
	s.clearDrafts(closure)

	if activeGone {
		return s.Open(ctx, next)
	}
	return nil
}

// Move places dragID at index in targetParentID's child list, counted
// without the dragged page.
func (s *Session) Move(ctx context.Context, dragID string, targetParentID *string, index int) error {
	return s.applyMove(ctx, func(docs []doc.Doc, rootID string) (move.Result, error) {
		return move.Move(docs, rootID, dragID, targetParentID, index)
	})
}

// MoveToSlot is Move with a drop slot measured against the rows on screen.
func (s *Session) MoveToSlot(ctx context.Context, dragID string, targetParentID *string, slot int) error {
	return s.applyMove(ctx, func(docs []doc.Doc, rootID string) (move.Result, error) {
		return move.MoveToSlot(docs, rootID, dragID, targetParentID, slot)
	})
}

// BeginDrag starts a drag gesture, replacing any gesture in progress.
func (s *Session) BeginDrag(id string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	gesture, err := move.BeginDrag(s.docs, s.rootID, id)
	if err != nil {
		s.drag = nil
		return err
	}
	s.drag = gesture
	return nil
}

// ProposeDrop previews a drop without changing the page list.
func (s *Session) ProposeDrop(parentID *string, slot int) (move.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag == nil {
		return move.Result{}, move.ErrNoDrop
	}
	return s.drag.ProposeDrop(s.docs, s.rootID, parentID, slot)
}

// AppendSlot is the container drop slot for parentID.
func (s *Session) AppendSlot(parentID *string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID == nil && s.rootID != "" {
		parentID = doc.Ref(s.rootID)
	}
	return move.AppendSlot(s.docs, parentID)
}

// CommitDrop applies the last accepted proposal and ends the gesture.
func (s *Session) CommitDrop(ctx context.Context) error {
	s.mu.Lock()
	gesture := s.drag
	s.drag = nil
	s.mu.Unlock()
	if gesture == nil {
		return move.ErrNoDrop
	}
	return s.applyMove(ctx, gesture.CommitDrop)
}

func (s *Session) CancelDrag() {
	s.mu.Lock()
	s.drag = nil
	s.mu.Unlock()
}

func (s *Session) applyMove(ctx context.Context, plan func(docs []doc.Doc, rootID string) (move.Result, error)) error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	s.mu.Lock()
	result, err := plan(s.docs, s.rootID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs = result.NextDocs
	s.mu.Unlock()

	// One put per changed page, in order: the store has no multi-row write.
	for _, update := range result.Updates {
		patch := doc.Patch{}.WithPosition(update.Position).WithParent(update.ParentID)
		raw, err := s.store.Put(ctx, update.ID, patch)
		if err != nil {
			s.resync(ctx)
			return fmt.Errorf("move page %s: %w", update.ID, err)
		}
		s.mergeSaved(raw)
	}
	s.index(result.Updates...)
	return nil
}

// Close saves pending content, waiting until ctx is done at most, and
// detaches the editor.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	s.mu.Unlock()

	if s.scheduler.Dirty() {
		select {
		case <-s.scheduler.Flush():
		case <-ctx.Done():
			log.Printf("workspace: closing with unsaved changes in %s", s.ActiveID())
		}
	}
	s.scheduler.Deactivate()
}

func (s *Session) Page(id string) (doc.Doc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := tree.ByID(s.docs)[id]
	return d, ok
}

// Pages returns the visible pages.
func (s *Session) Pages() []doc.Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return doc.Clone(s.docs)
}

func (s *Session) RootID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID
}

func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *Session) View() View {
	s.mu.Lock()
	docs := doc.Clone(s.docs)
	view := View{
		ScopeID:  s.opts.Scope.ID(),
		RootID:   s.rootID,
		ActiveID: s.activeID,
		Writable: s.Writable(),
		Pages:    docs,
		Healed:   append([]string(nil), s.healed...),
	}
	if s.loadErr != nil {
		view.Error = s.loadErr.Error()
	}
	s.mu.Unlock()

	view.Tree = BuildTree(docs, view.RootID)
	view.Expired = s.Expired()
	view.Save = statusView(s.scheduler.State())
	return view
}

func (s *Session) savePage(ctx context.Context, docID, content string) error {
	raw, err := s.store.Put(ctx, docID, doc.Patch{}.WithHTML(content))
	if err != nil {
		return err
	}
	s.mergeSaved(raw)
	return nil
}

func (s *Session) recordHistory(docID, content string) {
	if s.opts.History == nil {
		return
	}
	if _, _, err := s.opts.History.Record(docID, content, s.opts.Author, "Autosave"); err != nil {
		log.Printf("workspace: record history for %s: %v", docID, err)
	}
}

// mergeSaved folds a store response into the local list. Pages that are not
// visible locally are ignored, and a missing position or an unknown parent in
// the response keeps the local value.
func (s *Session) mergeSaved(raw doc.Raw) {
	saved := reconcile.Normalize(raw, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := tree.ByID(s.docs)
	local, ok := byID[saved.ID]
	if !ok {
		return
	}
	if raw["position"] == nil {
		saved.Position = local.Position
	}
	if saved.ParentID != nil {
		if _, known := byID[*saved.ParentID]; !known {
			saved.ParentID = local.ParentID
		}
	}
	if saved.ID == s.rootID {
		saved.ParentID = nil
	}
	s.docs, _ = reconcile.MergeDoc(s.docs, saved)
}

func (s *Session) resync(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		log.Printf("workspace: resync %s: %v", s.opts.Scope.ID(), err)
	}
}

func (s *Session) index(pages ...doc.Doc) {
	if s.opts.Search == nil || len(pages) == 0 {
		return
	}
	s.opts.Search.IndexPages(s.opts.Scope.ID(), pages)
}

func (s *Session) clearDrafts(ids []string) {
	if s.opts.Drafts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), draftLookupTimeout)
	defer cancel()
	for _, id := range ids {
		if err := s.opts.Drafts.ClearDraft(ctx, id); err != nil {
			log.Printf("workspace: clear draft %s: %v", id, err)
		}
	}
}

func (s *Session) checkWritable() error {
	if !s.Writable() {
		return ErrReadOnly
	}
	if s.Expired() {
		return docstore.ErrSessionExpired
	}
	return nil
}

func (s *Session) loadSuperseded(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq != s.loadSeq
}

func (s *Session) openSuperseded(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq != s.openSeq
}

func containsID(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
