package treepath

// Node is one entry produced by a walk. Exactly one of Local and Remote is set.
type Node struct {
	Kind Kind
	Rel  RelPath
	// Size is only meaningful for leaves.
	Size uint64
	// Checksum is the remote checksum captured by the walk. It is empty for
	// local nodes and for data objects the store has not checksummed yet.
	Checksum string

	Local  LocalPath
	Remote *CachedRemotePath
}

func (n Node) Path() string {
	if n.Remote != nil {
		return n.Remote.Path()
	}
	return n.Local.Path()
}
