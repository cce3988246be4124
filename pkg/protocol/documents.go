package protocol

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentNotFound is returned by document ports for unknown document ids.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is the read-only view of document metadata used for routing.
type DocumentStore interface {
	GetDocumentMetadata(ctx context.Context, documentID string) (map[string]any, error)
}

// DocumentRegistry records metadata submitted with a document the store does not know yet.
type DocumentRegistry interface {
	RegisterDocument(ctx context.Context, documentID string, metadata map[string]any) error
}

// DocumentCheckouts performs the document_checkout side effect.
type DocumentCheckouts interface {
	CheckOut(ctx context.Context, documentID, userID string, until time.Time) error
}
