package protocol

import (
	"context"
	"maps"
	"sync"
	"time"
)

// StaticDocuments is an in-memory DocumentStore and DocumentCheckouts.
type StaticDocuments struct {
	mu        sync.RWMutex
	metadata  map[string]map[string]any
	checkouts map[string]Checkout
}

// Checkout records a document checked out by the document_checkout side effect.
type Checkout struct {
	DocumentID string
	UserID     string
	Until      time.Time
}

func NewStaticDocuments() *StaticDocuments {
	return &StaticDocuments{
		metadata:  make(map[string]map[string]any),
		checkouts: make(map[string]Checkout),
	}
}

func (s *StaticDocuments) Put(documentID string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata[documentID] = maps.Clone(metadata)
}

func (s *StaticDocuments) RegisterDocument(_ context.Context, documentID string, metadata map[string]any) error {
	s.Put(documentID, metadata)

	return nil
}

func (s *StaticDocuments) GetDocumentMetadata(_ context.Context, documentID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metadata, ok := s.metadata[documentID]
	if !ok {
		return nil, ErrDocumentNotFound
	}

	return maps.Clone(metadata), nil
}

func (s *StaticDocuments) CheckOut(_ context.Context, documentID, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.metadata[documentID]; !ok {
		return ErrDocumentNotFound
	}

	s.checkouts[documentID] = Checkout{DocumentID: documentID, UserID: userID, Until: until}

	return nil
}

// CheckoutOf returns the active checkout of a document.
func (s *StaticDocuments) CheckoutOf(documentID string) (Checkout, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.checkouts[documentID]

	return c, ok
}

// StaticDirectory is an in-memory IdentityStore.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewStaticDirectory(users ...*User) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}

	return d
}

func (d *StaticDirectory) GetUser(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	return u, nil
}
