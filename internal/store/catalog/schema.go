package catalog

var schema = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS data_objects (
		path TEXT PRIMARY KEY,
		coll_path TEXT NOT NULL REFERENCES collections(path),
		size INTEGER NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		blob_key TEXT NOT NULL,
		resource TEXT NOT NULL DEFAULT '',
		modified_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_data_objects_coll ON data_objects(coll_path)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		path TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		units TEXT NOT NULL DEFAULT '',
		UNIQUE(path, key, value, units)
	)`,
	`INSERT OR IGNORE INTO collections (path, parent, created_at) VALUES ('/', '', 0)`,
}

type collectionRow struct {
	Path      string `db:"path"`
	Parent    string `db:"parent"`
	CreatedAt int64  `db:"created_at"`
}

type dataObjectRow struct {
	Path       string `db:"path"`
	CollPath   string `db:"coll_path"`
	Size       int64  `db:"size"`
	Checksum   string `db:"checksum"`
	BlobKey    string `db:"blob_key"`
	Resource   string `db:"resource"`
	ModifiedAt int64  `db:"modified_at"`
}

type metadataRow struct {
	Path  string `db:"path"`
	Key   string `db:"key"`
	Value string `db:"value"`
	Units string `db:"units"`
}
