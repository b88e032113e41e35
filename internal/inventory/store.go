package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"time"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

// Document is the persisted shape: {"products": [...]}.
type Document struct {
	Products Collection `json:"products"`
}

// Store loads and saves the whole document. Implementations do no locking of
// their own; Service serialises read-modify-write sequences.
type Store interface {
	Load(ctx context.Context) (Document, error)
	Save(ctx context.Context, doc Document) error
	Ping(ctx context.Context) error
}

// encodeDocument always writes an array, never null.
func encodeDocument(doc Document) ([]byte, error) {
	if doc.Products == nil {
		doc.Products = Collection{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeDocument falls back to an empty collection when raw is empty,
// malformed, or lacks the products attribute. The boolean reports whether
// raw parsed.
func decodeDocument(raw []byte) (Document, bool) {
	var doc Document
	if len(bytes.TrimSpace(raw)) == 0 {
		return Document{Products: Collection{}}, true
	}
	if err := decodeJSON(raw, &doc); err != nil {
		return Document{Products: Collection{}}, false
	}
	if doc.Products == nil {
		doc.Products = Collection{}
	}
	return doc, true
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
