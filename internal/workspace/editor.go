package workspace

import (
	"sync"

	"chronicle/editor/internal/autosave"
)

// Editor is the editing surface a session drives.
type Editor interface {
	autosave.Content
	SetContent(content string, emitChange bool)
	OnContentChanged(fn func())
}

// Buffer is an in-memory Editor used by the HTTP shell and the CLI.
type Buffer struct {
	mu       sync.Mutex
	content  string
	onChange func()
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) SerializedContent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// SetContent replaces the buffer. The change callback runs only when
// emitChange is set, after the lock is released.
func (b *Buffer) SetContent(content string, emitChange bool) {
	b.mu.Lock()
	b.content = content
	fn := b.onChange
	b.mu.Unlock()
	if emitChange && fn != nil {
		fn()
	}
}

func (b *Buffer) OnContentChanged(fn func()) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}
