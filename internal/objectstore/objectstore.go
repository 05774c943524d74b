package objectstore

import "context"

// Store holds binary attachment objects. Keys are slash-separated paths
// namespaced by owner; PublicURL must resolve without authentication.
type Store interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	PublicURL(key string) string
	Close() error
}
