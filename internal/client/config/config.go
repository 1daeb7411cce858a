package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/openmined/treesync/internal/blob"
	"github.com/openmined/treesync/internal/utils"
)

const DefaultThreads = 4

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".treesync")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultCatalogPath = filepath.Join(DefaultConfigDir, "catalog.db")
	DefaultBlobDir     = filepath.Join(DefaultConfigDir, "blobs")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "treesync.log")
	DefaultRemoteHome  = "/tempZone/home/rods"
)

var (
	ErrInvalidRemoteHome = errors.New("remote home must be an absolute posix path")
	ErrInvalidThreads    = errors.New("threads must be positive")
)

// S3Config selects the S3 blob backend when a bucket is set.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

func (s *S3Config) Enabled() bool {
	return s != nil && s.Bucket != ""
}

func (s *S3Config) BlobConfig() *blob.S3BlobConfig {
	var cfg *blob.S3BlobConfig
	if s.Endpoint != "" {
		cfg = blob.WithMinioConfig(s.Endpoint, s.Bucket, s.AccessKey, s.SecretKey)
		if s.Region != "" {
			cfg.Region = s.Region
		}
	} else {
		cfg = blob.WithS3Config(s.Bucket, s.Region, s.AccessKey, s.SecretKey, false)
	}
	cfg.Prefix = s.Prefix
	return cfg
}

type Config struct {
	CatalogPath string    `json:"catalog_path"`
	BlobDir     string    `json:"blob_dir,omitempty"`
	RemoteHome  string    `json:"remote_home"`
	S3          *S3Config `json:"s3,omitempty"`
	Exclude     []string  `json:"exclude,omitempty"`
	Threads     int       `json:"threads,omitempty"`
	LogFile     string    `json:"log_file,omitempty"`
	Path        string    `json:"-"`
}

// Default returns a config pointing at ~/.treesync.
func Default() *Config {
	return &Config{
		CatalogPath: DefaultCatalogPath,
		BlobDir:     DefaultBlobDir,
		RemoteHome:  DefaultRemoteHome,
		Threads:     DefaultThreads,
		LogFile:     DefaultLogFilePath,
		Path:        DefaultConfigPath,
	}
}

// Validate fills defaults and resolves every local path to an absolute one.
func (c *Config) Validate() error {
	var err error

	if c.CatalogPath == "" {
		c.CatalogPath = DefaultCatalogPath
	}
	if c.CatalogPath, err = utils.ResolvePath(c.CatalogPath); err != nil {
		return fmt.Errorf("catalog path: %w", err)
	}

	if c.S3.Enabled() {
		if err := c.S3.BlobConfig().Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	} else {
		if c.BlobDir == "" {
			c.BlobDir = DefaultBlobDir
		}
		if c.BlobDir, err = utils.ResolvePath(c.BlobDir); err != nil {
			return fmt.Errorf("blob dir: %w", err)
		}
	}

	if c.RemoteHome == "" {
		c.RemoteHome = DefaultRemoteHome
	}
	if !strings.HasPrefix(c.RemoteHome, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidRemoteHome, c.RemoteHome)
	}
	c.RemoteHome = path.Clean(c.RemoteHome)

	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.Threads < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreads, c.Threads)
	}

	if c.LogFile == "" {
		c.LogFile = DefaultLogFilePath
	}
	if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
		return fmt.Errorf("log file: %w", err)
	}

	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if c.Path, err = utils.ResolvePath(c.Path); err != nil {
		return fmt.Errorf("config path: %w", err)
	}

	return nil
}

func (c *Config) Save() error {
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := utils.JSONMarshal(c)
	if err != nil {
		return err
	}

	// may hold s3 credentials
	return os.WriteFile(c.Path, data, 0o600)
}

// String masks credentials.
func (c *Config) String() string {
	s := fmt.Sprintf("catalog=%s remote_home=%s threads=%d", c.CatalogPath, c.RemoteHome, c.Threads)
	if c.S3.Enabled() {
		s += fmt.Sprintf(" s3=%s access_key=%s", c.S3.Bucket, utils.MaskSecret(c.S3.AccessKey))
	} else {
		s += " blob_dir=" + c.BlobDir
	}
	return s
}
