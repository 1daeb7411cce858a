package treepath

// Kind is the node kind of a tree entry on either side of a sync.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDirectory
	KindFile
	KindCollection
	KindDataObject
	// KindSymlink is only produced by the local walk; links are never followed.
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindCollection:
		return "collection"
	case KindDataObject:
		return "data object"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// IsContainer reports whether the kind holds children (directory or collection).
func (k Kind) IsContainer() bool {
	return k == KindDirectory || k == KindCollection
}

// IsLeaf reports whether the kind carries content (file or data object).
func (k Kind) IsLeaf() bool {
	return k == KindFile || k == KindDataObject
}
