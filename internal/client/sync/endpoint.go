package sync

import "github.com/openmined/treesync/internal/treepath"

// Endpoint is one side of a sync: a local directory or a remote collection.
type Endpoint interface {
	String() string
	isEndpoint()
}

type LocalEndpoint struct {
	Path treepath.LocalPath
}

type RemoteEndpoint struct {
	Path treepath.RemotePath
}

func Local(p treepath.LocalPath) LocalEndpoint    { return LocalEndpoint{Path: p} }
func Remote(p treepath.RemotePath) RemoteEndpoint { return RemoteEndpoint{Path: p} }

func (e LocalEndpoint) String() string  { return e.Path.String() }
func (e RemoteEndpoint) String() string { return "irods:" + e.Path.String() }

func (LocalEndpoint) isEndpoint()  {}
func (RemoteEndpoint) isEndpoint() {}

// Direction of a sync, derived from which endpoint is remote.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

func direction(source, target Endpoint) (Direction, error) {
	_, srcRemote := source.(RemoteEndpoint)
	_, tgtRemote := target.(RemoteEndpoint)
	switch {
	case !srcRemote && tgtRemote:
		return Upload, nil
	case srcRemote && !tgtRemote:
		return Download, nil
	}
	return "", ErrInvalidDirection
}
