package domain

// EntryKind classifies a filesystem entry
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// String returns the string representation of the kind
func (k EntryKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Entry is a path observed during one enumeration of a tree
type Entry struct {
	// Path is relative to the tree root, slash separated
	Path string

	// Kind indicates if this is a file or a directory
	Kind EntryKind
}

// IsDir returns true if this is a directory
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IsFile returns true if this is a file
func (e Entry) IsFile() bool {
	return e.Kind == KindFile
}
