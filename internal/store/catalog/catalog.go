// Package catalog is a self-contained implementation of store.Client: the
// namespace, checksums and metadata live in sqlite, the bytes in a BlobStore.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/treesync/internal/db"
	"github.com/openmined/treesync/internal/store"
	"github.com/openmined/treesync/internal/utils"
)

type config struct {
	readOnly    bool
	collections []string
}

type Option func(*config)

// WithReadOnly rejects every mutating call with store.ErrPermissionDenied.
func WithReadOnly() Option {
	return func(c *config) {
		c.readOnly = true
	}
}

// WithCollections makes sure the given collections (and their parents) exist on open.
func WithCollections(paths ...string) Option {
	return func(c *config) {
		c.collections = append(c.collections, paths...)
	}
}

type Catalog struct {
	db       *sqlx.DB
	blobs    BlobStore
	readOnly bool
}

// Open opens (or creates) the catalog database at dbPath. Use ":memory:" for a
// throwaway catalog.
func Open(dbPath string, blobs BlobStore, opts ...Option) (*Catalog, error) {
	sqlDB, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithSchema(schema...))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c, err := New(sqlDB, blobs, opts...)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an already opened database. The schema is applied if missing.
func New(sqlDB *sqlx.DB, blobs BlobStore, opts ...Option) (*Catalog, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	for _, stmt := range schema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply catalog schema: %w", err)
		}
	}

	c := &Catalog{db: sqlDB, blobs: blobs}
	for _, p := range cfg.collections {
		if err := c.CreateCollection(context.Background(), p, true); err != nil {
			return nil, fmt.Errorf("create collection %s: %w", p, err)
		}
	}
	c.readOnly = cfg.readOnly
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.Stat(ctx, p)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Catalog) Stat(ctx context.Context, p string) (*store.Entry, error) {
	p = cleanPath(p)

	obj, err := c.dataObject(ctx, c.db, p)
	if err == nil {
		return obj.entry(), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	isColl, err := c.collectionExists(ctx, c.db, p)
	if err != nil {
		return nil, err
	}
	if !isColl {
		return nil, fmt.Errorf("stat %s: %w", p, store.ErrNotFound)
	}
	return &store.Entry{Path: p, IsCollection: true}, nil
}

func (c *Catalog) Put(ctx context.Context, localPath, remotePath string, opts store.PutOptions) error {
	if c.readOnly {
		return fmt.Errorf("put %s: %w", remotePath, store.ErrPermissionDenied)
	}
	remotePath = cleanPath(remotePath)
	parent := path.Dir(remotePath)

	ok, err := c.collectionExists(ctx, c.db, parent)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("put %s: %w", remotePath, store.ErrParentMissing)
	}
	if isColl, err := c.collectionExists(ctx, c.db, remotePath); err != nil {
		return err
	} else if isColl {
		return fmt.Errorf("put %s: path is a collection", remotePath)
	}

	existing, err := c.dataObject(ctx, c.db, remotePath)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if existing != nil && !opts.Overwrite {
		return fmt.Errorf("put %s: %w", remotePath, store.ErrOverwriteWithoutForce)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}

	var reader io.Reader = file
	hasher, _ := utils.NewChecksumHash(utils.ChecksumSHA2)
	if opts.RegisterChecksum {
		reader = io.TeeReader(file, hasher)
	}

	key := uuid.NewString()
	if err := c.blobs.Write(ctx, key, reader, info.Size()); err != nil {
		return fmt.Errorf("put %s: write blob: %w", remotePath, err)
	}

	row := &dataObjectRow{
		Path:       remotePath,
		CollPath:   parent,
		Size:       info.Size(),
		BlobKey:    key,
		Resource:   opts.Resource,
		ModifiedAt: time.Now().UnixNano(),
	}
	if opts.RegisterChecksum {
		row.Checksum = utils.FormatChecksum(utils.ChecksumSHA2, hasher.Sum(nil))
	}

	_, err = c.db.NamedExecContext(ctx, `
		INSERT INTO data_objects (path, coll_path, size, checksum, blob_key, resource, modified_at)
		VALUES (:path, :coll_path, :size, :checksum, :blob_key, :resource, :modified_at)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			checksum = excluded.checksum,
			blob_key = excluded.blob_key,
			resource = excluded.resource,
			modified_at = excluded.modified_at
	`, row)
	if err != nil {
		_ = c.blobs.Delete(ctx, key)
		return fmt.Errorf("put %s: record data object: %w", remotePath, err)
	}

	if existing != nil {
		if err := c.blobs.Delete(ctx, existing.BlobKey); err != nil {
			slog.Warn("catalog delete stale blob", "path", remotePath, "key", existing.BlobKey, "error", err)
		}
	}

	slog.Debug("catalog put", "path", remotePath, "size", row.Size, "resource", opts.Resource, "threads", opts.Threads)
	return nil
}

func (c *Catalog) Get(ctx context.Context, remotePath, localPath string, opts store.GetOptions) error {
	obj, err := c.dataObject(ctx, c.db, cleanPath(remotePath))
	if err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}

	if _, err := os.Stat(localPath); err == nil && !opts.Overwrite {
		return fmt.Errorf("get %s: %w", localPath, store.ErrOverwriteWithoutForce)
	}

	body, err := c.blobs.Read(ctx, obj.BlobKey)
	if err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}
	defer body.Close()

	if _, err := utils.WriteFileAtomic(localPath, body); err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}
	return nil
}

func (c *Catalog) ComputeChecksum(ctx context.Context, p string) (string, error) {
	p = cleanPath(p)
	obj, err := c.dataObject(ctx, c.db, p)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", p, err)
	}

	body, err := c.blobs.Read(ctx, obj.BlobKey)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", p, err)
	}
	defer body.Close()

	sum, err := utils.ReaderChecksum(body, utils.ChecksumSHA2)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", p, err)
	}

	// a read-only catalog still answers, it just does not register the result
	if !c.readOnly {
		if _, err := c.db.ExecContext(ctx, `UPDATE data_objects SET checksum = ? WHERE path = ?`, sum, p); err != nil {
			return "", fmt.Errorf("register checksum %s: %w", p, err)
		}
	}
	return sum, nil
}

func (c *Catalog) CreateCollection(ctx context.Context, p string, recursive bool) error {
	if c.readOnly {
		return fmt.Errorf("create collection %s: %w", p, store.ErrPermissionDenied)
	}
	p = cleanPath(p)

	return db.WithTx(ctx, c.db, func(tx *sqlx.Tx) error {
		var missing []string
		for cur := p; ; cur = path.Dir(cur) {
			if _, err := c.dataObject(ctx, tx, cur); err == nil {
				return fmt.Errorf("create collection %s: %s is a data object", p, cur)
			}
			ok, err := c.collectionExists(ctx, tx, cur)
			if err != nil {
				return err
			}
			if ok {
				break
			}
			missing = append(missing, cur)
		}

		if len(missing) > 1 && !recursive {
			return fmt.Errorf("create collection %s: %w", p, store.ErrParentMissing)
		}

		now := time.Now().UnixNano()
		for i := len(missing) - 1; i >= 0; i-- {
			row := &collectionRow{Path: missing[i], Parent: path.Dir(missing[i]), CreatedAt: now}
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO collections (path, parent, created_at) VALUES (:path, :parent, :created_at)
			`, row); err != nil {
				return fmt.Errorf("create collection %s: %w", missing[i], err)
			}
		}
		return nil
	})
}

func (c *Catalog) ListTree(ctx context.Context, root string) (*store.Listing, error) {
	root = cleanPath(root)
	ok, err := c.collectionExists(ctx, c.db, root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("list %s: %w", root, store.ErrNotFound)
	}

	// LIKE ignores ASCII case, so match the prefix byte for byte
	prefix := strings.TrimSuffix(root, "/") + "/"

	var objects []dataObjectRow
	if err := c.db.SelectContext(ctx, &objects, `
		SELECT * FROM data_objects WHERE substr(path, 1, length(?)) = ? ORDER BY path
	`, prefix, prefix); err != nil {
		return nil, fmt.Errorf("list data objects %s: %w", root, err)
	}

	var colls []collectionRow
	if err := c.db.SelectContext(ctx, &colls, `
		SELECT * FROM collections WHERE substr(path, 1, length(?)) = ? AND path != ? ORDER BY path
	`, prefix, prefix, root); err != nil {
		return nil, fmt.Errorf("list collections %s: %w", root, err)
	}

	listing := &store.Listing{
		DataObjects: make([]store.Entry, 0, len(objects)),
		Collections: make([]store.Entry, 0, len(colls)),
	}
	for i := range objects {
		listing.DataObjects = append(listing.DataObjects, *objects[i].entry())
	}
	for _, coll := range colls {
		listing.Collections = append(listing.Collections, store.Entry{Path: coll.Path, IsCollection: true})
	}
	return listing, nil
}

func (c *Catalog) GetMetadata(ctx context.Context, p string) ([]store.MetadataItem, error) {
	p = cleanPath(p)
	if ok, err := c.Exists(ctx, p); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("metadata %s: %w", p, store.ErrNotFound)
	}

	var rows []metadataRow
	if err := c.db.SelectContext(ctx, &rows, `
		SELECT * FROM metadata WHERE path = ? ORDER BY key, value, units
	`, p); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", p, err)
	}

	items := make([]store.MetadataItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, store.MetadataItem{Key: row.Key, Value: row.Value, Units: row.Units})
	}
	return items, nil
}

func (c *Catalog) AddMetadata(ctx context.Context, p string, item store.MetadataItem) error {
	if c.readOnly {
		return fmt.Errorf("add metadata %s: %w", p, store.ErrPermissionDenied)
	}
	p = cleanPath(p)
	if ok, err := c.Exists(ctx, p); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("add metadata %s: %w", p, store.ErrNotFound)
	}

	res, err := c.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO metadata (path, key, value, units) VALUES (:path, :key, :value, :units)
	`, &metadataRow{Path: p, Key: item.Key, Value: item.Value, Units: item.Units})
	if err != nil {
		return fmt.Errorf("add metadata %s: %w", p, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("add metadata %s (%s=%s): %w", p, item.Key, item.Value, store.ErrMetadataExists)
	}
	return nil
}

func (c *Catalog) RemoveMetadata(ctx context.Context, p string, item store.MetadataItem) error {
	if c.readOnly {
		return fmt.Errorf("remove metadata %s: %w", p, store.ErrPermissionDenied)
	}
	p = cleanPath(p)

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM metadata WHERE path = ? AND key = ? AND value = ? AND units = ?
	`, p, item.Key, item.Value, item.Units)
	if err != nil {
		return fmt.Errorf("remove metadata %s: %w", p, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("remove metadata %s (%s=%s): %w", p, item.Key, item.Value, store.ErrNotFound)
	}
	return nil
}

func (c *Catalog) dataObject(ctx context.Context, q sqlx.QueryerContext, p string) (*dataObjectRow, error) {
	var row dataObjectRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM data_objects WHERE path = ?`, p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("data object %s: %w", p, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("data object %s: %w", p, err)
	}
	return &row, nil
}

func (c *Catalog) collectionExists(ctx context.Context, q sqlx.QueryerContext, p string) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, q, &count, `SELECT COUNT(*) FROM collections WHERE path = ?`, p); err != nil {
		return false, fmt.Errorf("collection %s: %w", p, err)
	}
	return count > 0, nil
}

func (r *dataObjectRow) entry() *store.Entry {
	return &store.Entry{
		Path:     r.Path,
		Size:     uint64(r.Size),
		Checksum: r.Checksum,
	}
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

var _ store.Client = (*Catalog)(nil)
