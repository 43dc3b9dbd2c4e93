package storage

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultBlobParallelism bounds concurrent blob transfers.
const DefaultBlobParallelism = 4

// PutBlobs writes all blobs concurrently and returns the first error.
// Blobs already written when another one fails are left in place; callers
// clean up with DeleteBlobs.
func PutBlobs(ctx context.Context, bs BlobStore, blobs []models.Blob) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultBlobParallelism)
	for _, b := range blobs {
		g.Go(func() error {
			return bs.PutBlob(ctx, b.Key, b.Data)
		})
	}
	return g.Wait()
}

// GetBlobs fetches keys concurrently, preserving order.
func GetBlobs(ctx context.Context, bs BlobStore, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultBlobParallelism)
	for i, k := range keys {
		g.Go(func() error {
			data, err := bs.GetBlob(ctx, k)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBlobs removes every key it can and returns the keys it could not.
func DeleteBlobs(ctx context.Context, bs BlobStore, keys []string) []string {
	failed := make([]bool, len(keys))
	var g errgroup.Group
	g.SetLimit(DefaultBlobParallelism)
	for i, k := range keys {
		g.Go(func() error {
			if err := bs.DeleteBlob(ctx, k); err != nil {
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var left []string
	for i, f := range failed {
		if f {
			left = append(left, keys[i])
		}
	}
	return left
}
