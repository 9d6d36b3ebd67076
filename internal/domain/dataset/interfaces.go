package dataset

import "context"

// BlobStore keeps dataset content keyed by filename. Put overwrites.
type BlobStore interface {
	Put(ctx context.Context, name string, content []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}
