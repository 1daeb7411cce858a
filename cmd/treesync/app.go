package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/openmined/treesync/internal/blob"
	"github.com/openmined/treesync/internal/client/config"
	"github.com/openmined/treesync/internal/client/sync"
	"github.com/openmined/treesync/internal/client/workspace"
	"github.com/openmined/treesync/internal/store/catalog"
	"github.com/openmined/treesync/internal/treepath"
	"github.com/spf13/cobra"
)

// remotePrefix marks an argument as a remote path.
const remotePrefix = "irods:"

// app bundles what every data command needs.
type app struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	logs    io.Closer
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logs, err := setupLogger(cfg.LogFile, verbose)
	if err != nil {
		return nil, err
	}
	slog.Debug("config", "path", cfg.Path, "settings", cfg.String())

	cat, err := openCatalog(cmd.Context(), cfg)
	if err != nil {
		logs.Close()
		return nil, err
	}

	return &app{cfg: cfg, catalog: cat, logs: logs}, nil
}

func openCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	var blobs catalog.BlobStore
	if cfg.S3.Enabled() {
		s3Blobs, err := blob.OpenS3Blobs(ctx, cfg.S3.BlobConfig())
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		blobs = s3Blobs
	} else {
		dirBlobs, err := catalog.NewDirBlobs(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("open blob dir: %w", err)
		}
		blobs = dirBlobs
	}

	cat, err := catalog.Open(cfg.CatalogPath, blobs, catalog.WithCollections(cfg.RemoteHome))
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.CatalogPath, err)
	}
	return cat, nil
}

func (a *app) Close() error {
	return errors.Join(a.catalog.Close(), a.logs.Close())
}

func isRemoteArg(arg string) bool {
	return strings.HasPrefix(arg, remotePrefix)
}

// remotePath accepts paths with or without the remote prefix.
func (a *app) remotePath(arg string) treepath.RemotePath {
	return treepath.NewRemotePath(a.catalog, a.cfg.RemoteHome, strings.TrimPrefix(arg, remotePrefix))
}

func (a *app) endpoint(arg string) (sync.Endpoint, error) {
	if isRemoteArg(arg) {
		return sync.Remote(a.remotePath(arg)), nil
	}
	local, err := treepath.NewLocalPath(arg)
	if err != nil {
		return nil, fmt.Errorf("local path %q: %w", arg, err)
	}
	return sync.Local(local), nil
}

// lockLocal takes the run lock of whichever endpoint is local.
func (a *app) lockLocal(endpoints ...sync.Endpoint) (*workspace.Workspace, error) {
	for _, e := range endpoints {
		local, ok := e.(sync.LocalEndpoint)
		if !ok {
			continue
		}
		ws, err := workspace.NewWorkspace(local.Path.Path(), filepath.Join(filepath.Dir(a.cfg.Path), "locks"))
		if err != nil {
			return nil, err
		}
		if err := ws.Lock(); err != nil {
			return nil, err
		}
		return ws, nil
	}
	return nil, nil
}
