package workspace

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileEditor is an Editor backed by a file on disk. Writes made to the file
// by another program become content changes; content set by the session is
// written back to the file.
type FileEditor struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	content  string
	onChange func()
}

// NewFileEditor watches path, creating it empty when missing. The parent
// directory is watched so that editors which save by renaming are seen too.
func NewFileEditor(path string) (*FileEditor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(abs, nil, 0o644); err != nil {
			return nil, fmt.Errorf("create %s: %w", abs, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", abs, err)
	}

	e := &FileEditor{
		path:    abs,
		watcher: w,
		done:    make(chan struct{}),
		content: string(data),
	}
	go e.loop()
	return e, nil
}

func (e *FileEditor) Path() string {
	return e.path
}

func (e *FileEditor) SerializedContent() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content
}

// SetContent replaces the content and mirrors it to disk. The watcher event
// caused by that write is ignored because the content already matches.
func (e *FileEditor) SetContent(content string, emitChange bool) {
	e.mu.Lock()
	e.content = content
	fn := e.onChange
	e.mu.Unlock()

	if err := e.replaceFile(content); err != nil {
		log.Printf("workspace: write %s: %v", e.path, err)
	}
	if emitChange && fn != nil {
		fn()
	}
}

// replaceFile renames a fully written sibling over the file so the watcher
// never reads a truncated body.
func (e *FileEditor) replaceFile(content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(e.path), "."+filepath.Base(e.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), e.path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (e *FileEditor) OnContentChanged(fn func()) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

func (e *FileEditor) Close() error {
	var err error
	e.once.Do(func() {
		close(e.done)
		err = e.watcher.Close()
	})
	return err
}

func (e *FileEditor) loop() {
	for {
		select {
		case <-e.done:
			return
		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != e.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			e.reload()
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				log.Printf("workspace: watch %s: %v", e.path, err)
			}
		}
	}
}

func (e *FileEditor) reload() {
	data, err := os.ReadFile(e.path)
	if err != nil {
		// Mid-rename; the following create event reloads.
		return
	}
	e.mu.Lock()
	if string(data) == e.content {
		e.mu.Unlock()
		return
	}
	e.content = string(data)
	fn := e.onChange
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}
