package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"chronicle/editor/internal/doc"
)

// Memory is an in-process Store with the document service's semantics:
// partial upserts with a version counter, one-level cascading deletes and
// lists ordered by position then creation time.
type Memory struct {
	mu   sync.Mutex
	now  func() time.Time
	docs map[string]*memoryDoc
	seq  int
}

type memoryDoc struct {
	id           string
	title        string
	jobID        string
	folderID     *string
	position     *float64
	icon         string
	htmlSnapshot string
	tiptapJSON   []byte
	version      int
	createdAt    time.Time
	updatedAt    time.Time
	seq          int
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, docs: make(map[string]*memoryDoc)}
}

func (m *Memory) Get(_ context.Context, id string) (doc.Raw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.raw(), nil
}

func (m *Memory) Put(_ context.Context, id string, patch doc.Patch) (doc.Raw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	d, ok := m.docs[id]
	if !ok {
		m.seq++
		d = &memoryDoc{id: id, title: doc.UntitledTitle, createdAt: now, seq: m.seq}
		m.docs[id] = d
	}
	if patch.Title != nil {
		d.title = *patch.Title
	}
	if patch.JobID != nil {
		d.jobID = *patch.JobID
	}
	if patch.Position != nil {
		p := *patch.Position
		d.position = &p
	}
	if patch.Icon != nil {
		d.icon = *patch.Icon
	}
	if patch.HTMLSnapshot != nil {
		d.htmlSnapshot = *patch.HTMLSnapshot
	}
	if len(patch.TiptapJSON) > 0 {
		d.tiptapJSON = append([]byte(nil), patch.TiptapJSON...)
	}
	if patch.SetParent {
		if patch.ParentID == nil {
			d.folderID = nil
		} else {
			parent := *patch.ParentID
			d.folderID = &parent
		}
	}
	d.version++
	d.updatedAt = now
	return d.raw(), nil
}

func (m *Memory) Delete(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []string
	for _, d := range m.sortedLocked() {
		if d.id == id || (d.folderID != nil && *d.folderID == id) {
			deleted = append(deleted, d.id)
		}
	}
	if len(deleted) == 0 {
		return nil, ErrNotFound
	}
	for _, removed := range deleted {
		delete(m.docs, removed)
	}
	return deleted, nil
}

func (m *Memory) ListByScope(_ context.Context, scopeID string) ([]doc.Raw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]doc.Raw, 0)
	for _, d := range m.sortedLocked() {
		if d.jobID == scopeID {
			out = append(out, d.raw())
		}
	}
	return out, nil
}

func (m *Memory) sortedLocked() []*memoryDoc {
	all := make([]*memoryDoc, 0, len(m.docs))
	for _, d := range m.docs {
		all = append(all, d)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch {
		case a.position == nil && b.position != nil:
			return false
		case a.position != nil && b.position == nil:
			return true
		case a.position != nil && b.position != nil && *a.position != *b.position:
			return *a.position < *b.position
		}
		return a.seq < b.seq
	})
	return all
}

func (d *memoryDoc) raw() doc.Raw {
	raw := doc.Raw{
		"id":           d.id,
		"title":        d.title,
		"jobId":        d.jobID,
		"icon":         d.icon,
		"htmlSnapshot": d.htmlSnapshot,
		"version":      d.version,
		"createdAt":    d.createdAt.Format(time.RFC3339Nano),
		"updatedAt":    d.updatedAt.Format(time.RFC3339Nano),
		"folderId":     nil,
		"position":     nil,
	}
	if d.folderID != nil {
		raw["folderId"] = *d.folderID
	}
	if d.position != nil {
		raw["position"] = *d.position
	}
	if len(d.tiptapJSON) > 0 {
		var content any
		if err := json.Unmarshal(d.tiptapJSON, &content); err == nil {
			raw["tiptapJson"] = content
		}
	}
	return raw
}
