package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Journal appends every payload as one JSON line to a local file. It keeps a
// replayable record of what the overlay was shown during a session.
type Journal struct {
	mu   sync.Mutex
	path string
}

var _ Publisher = (*Journal)(nil)

// NewJournal returns a Journal writing to path. The file is created on the
// first publication.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Publish implements [Publisher].
func (j *Journal) Publish(_ context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("publish: journal: marshal: %w", err)
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("publish: journal: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("publish: journal: write: %w", err)
	}
	return nil
}
