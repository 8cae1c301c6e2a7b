package document

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind describes a change to the store
type EventKind string

const (
	EventAdded   EventKind = "document.added"
	EventUpdated EventKind = "document.updated"
	EventRemoved EventKind = "document.removed"
	EventActive  EventKind = "document.active"
)

// Event is published after every store mutation
type Event struct {
	Kind     EventKind `json:"kind"`
	Document Document  `json:"document"`
}

// NewFile describes a file about to be ingested
type NewFile struct {
	Name        string
	Size        int64
	ContentType string
}

// Store holds the in-memory document set and the active selection.
// The active id always references an existing document, and is empty only
// when the set is empty.
type Store struct {
	mu        sync.RWMutex
	docs      []Document // newest first
	activeID  string
	listeners []func(Event)
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Subscribe registers fn to be called after every mutation
func (s *Store) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Add creates documents in uploading state, placed before all existing
// documents in the given order. If nothing is active the first new one becomes active.
func (s *Store) Add(files ...NewFile) []Document {
	now := time.Now()
	added := make([]Document, len(files))
	for i, f := range files {
		added[i] = Document{
			ID:          uuid.NewString(),
			Name:        f.Name,
			Size:        f.Size,
			ContentType: f.ContentType,
			Status:      StatusUploading,
			UploadedAt:  now,
		}
	}

	s.mu.Lock()
	s.docs = append(append(make([]Document, 0, len(added)+len(s.docs)), added...), s.docs...)
	events := make([]Event, 0, len(added)+1)
	for _, d := range added {
		events = append(events, Event{Kind: EventAdded, Document: d})
	}
	if ev, changed := s.repairActive(); changed {
		events = append(events, ev)
	}
	s.publish(events...)
	s.mu.Unlock()

	return added
}

// Get returns the document with the given id
func (s *Store) Get(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(id)
	if i < 0 {
		return Document{}, false
	}
	return s.docs[i], true
}

// List returns all documents, newest first
func (s *Store) List() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Active returns the active document, if any
func (s *Store) Active() (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(s.activeID)
	if i < 0 {
		return Document{}, false
	}
	return s.docs[i], true
}

// SetActive selects the document with the given id
func (s *Store) SetActive(id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.activeID != id {
		s.activeID = id
		s.publish(Event{Kind: EventActive, Document: s.docs[i]})
	}
	return s.docs[i], nil
}

// Remove deletes a document. Removing the active document activates the first remaining one.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.docs[i]
	s.docs = append(s.docs[:i:i], s.docs[i+1:]...)

	events := []Event{{Kind: EventRemoved, Document: removed}}
	if ev, changed := s.repairActive(); changed {
		events = append(events, ev)
	}
	s.publish(events...)
	return nil
}

// MarkProcessing moves a document to processing
func (s *Store) MarkProcessing(id string) error {
	return s.update(id, func(d *Document) {
		d.Status = StatusProcessing
	})
}

// Complete stores the extracted text and marks the document ready
func (s *Store) Complete(id, content string, accuracy float64) error {
	return s.update(id, func(d *Document) {
		d.Status = StatusReady
		d.Content = content
		d.Accuracy = accuracy
		d.Error = ""
	})
}

// Fail marks a document as failed
func (s *Store) Fail(id string, cause error) error {
	return s.update(id, func(d *Document) {
		d.Status = StatusError
		if cause != nil {
			d.Error = cause.Error()
		}
	})
}

func (s *Store) update(id string, fn func(d *Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(&s.docs[i])
	s.publish(Event{Kind: EventUpdated, Document: s.docs[i]})
	return nil
}

// repairActive restores the active-id invariant. Caller holds the lock.
func (s *Store) repairActive() (Event, bool) {
	if len(s.docs) == 0 {
		if s.activeID == "" {
			return Event{}, false
		}
		s.activeID = ""
		return Event{Kind: EventActive}, true
	}
	if s.index(s.activeID) >= 0 {
		return Event{}, false
	}
	s.activeID = s.docs[0].ID
	return Event{Kind: EventActive, Document: s.docs[0]}, true
}

func (s *Store) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.docs {
		if s.docs[i].ID == id {
			return i
		}
	}
	return -1
}

// publish runs listeners under the store lock so they observe mutations in order.
// Listeners must not call back into the store.
func (s *Store) publish(events ...Event) {
	for _, ev := range events {
		for _, fn := range s.listeners {
			fn(ev)
		}
	}
}
