package diff

// DiffResult represents the comparison result between a source entry and its replica counterpart
type DiffResult int

const (
	// Identical indicates nothing needs to be done
	Identical DiffResult = iota
	// Modified indicates both are files and their content differs
	Modified
	// OnlyInSource indicates the replica counterpart is missing
	OnlyInSource
	// TypeMismatch indicates one side is a file and the other a directory
	TypeMismatch
)

// String returns the string representation of the result
func (r DiffResult) String() string {
	switch r {
	case Identical:
		return "identical"
	case Modified:
		return "modified"
	case OnlyInSource:
		return "only-in-source"
	case TypeMismatch:
		return "type-mismatch"
	default:
		return "unknown"
	}
}

// Side describes one side of a comparison
type Side struct {
	Exists bool
	IsDir  bool

	// Fingerprint is the content digest (files only, may be empty for the replica
	// side when it does not exist)
	Fingerprint string
}

// Comparer compares a source entry with its replica counterpart
type Comparer interface {
	Compare(src, replica Side) DiffResult
}

// FingerprintComparer treats equal fingerprints as equal content.
// Modification times and sizes are never consulted.
type FingerprintComparer struct{}

// NewFingerprintComparer creates a new FingerprintComparer
func NewFingerprintComparer() *FingerprintComparer {
	return &FingerprintComparer{}
}

// Compare implements the Comparer interface
func (c *FingerprintComparer) Compare(src, replica Side) DiffResult {
	if !replica.Exists {
		return OnlyInSource
	}

	if src.IsDir != replica.IsDir {
		return TypeMismatch
	}

	// Directories carry no content
	if src.IsDir {
		return Identical
	}

	if src.Fingerprint == "" || src.Fingerprint != replica.Fingerprint {
		return Modified
	}
	return Identical
}
