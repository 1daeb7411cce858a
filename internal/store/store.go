// Package store defines the boundary to a remote hierarchical store of
// collections and data objects. The sync engine only talks to remote trees
// through Client.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound              = errors.New("path not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrParentMissing         = errors.New("parent collection does not exist")
	ErrOverwriteWithoutForce = errors.New("data object exists and overwrite was not requested")
	ErrMetadataExists        = errors.New("metadata item already exists")
)

// Client is the remote store collaborator.
// Paths are absolute, POSIX-style and already normalized.
type Client interface {
	Exists(ctx context.Context, path string) (bool, error)
	// Stat returns ErrNotFound when the path is neither a collection nor a data object.
	Stat(ctx context.Context, path string) (*Entry, error)

	Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error
	Get(ctx context.Context, remotePath, localPath string, opts GetOptions) error

	// ComputeChecksum asks the store to (re)compute and register the checksum of a data object.
	ComputeChecksum(ctx context.Context, path string) (string, error)

	// CreateCollection fails with ErrParentMissing unless recursive is set.
	CreateCollection(ctx context.Context, path string, recursive bool) error

	// ListTree returns every descendant of root in at most two bulk queries.
	ListTree(ctx context.Context, root string) (*Listing, error)

	GetMetadata(ctx context.Context, path string) ([]MetadataItem, error)
	// AddMetadata fails with ErrMetadataExists on an exact (key, value, units) duplicate.
	AddMetadata(ctx context.Context, path string, item MetadataItem) error
	RemoveMetadata(ctx context.Context, path string, item MetadataItem) error
}

// Entry describes a single remote node.
type Entry struct {
	Path         string `json:"path"`
	IsCollection bool   `json:"isCollection"`
	Size         uint64 `json:"size"`
	// Checksum is "<algo>:<base64>" or empty when the store has not computed one yet.
	Checksum string `json:"checksum"`
}

type Listing struct {
	DataObjects []Entry
	Collections []Entry
}

type PutOptions struct {
	Overwrite        bool
	Resource         string
	Threads          int
	RegisterChecksum bool
	Extra            map[string]string
}

type GetOptions struct {
	Overwrite bool
	Resource  string
	Threads   int
	Extra     map[string]string
}

// MetadataItem is a key-value-units triple. Empty Units means no units.
type MetadataItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Units string `json:"units"`
}
