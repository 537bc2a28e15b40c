package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"

	"github.com/Ning0612/mirrorsync/internal/domain"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 algorithm (fast, suitable for content comparison)
	MD5 Algorithm = "md5"
	// SHA256 algorithm (slower, collision resistant)
	SHA256 Algorithm = "sha256"
	// XXH64 algorithm (non-cryptographic, fastest)
	XXH64 Algorithm = "xxh64"
)

// DefaultBlockSize is the size of each read while streaming a file
const DefaultBlockSize = 64 * 1024

// Options configures the checksum calculator
type Options struct {
	// Algorithm used by Fingerprint
	// Default: MD5
	Algorithm Algorithm

	// BlockSize: size of buffer for streaming reads
	// Default: 64KB
	BlockSize int
}

// DefaultOptions returns the recommended default options
func DefaultOptions() Options {
	return Options{
		Algorithm: MD5,
		BlockSize: DefaultBlockSize,
	}
}

// Calculator computes content digests
type Calculator interface {
	// Calculate computes checksum from an io.Reader
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator implements Calculator with streaming support
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.Algorithm == "" {
		opts.Algorithm = MD5
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

// Calculate implements the Calculator interface
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	buffer := make([]byte, c.opts.BlockSize)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := reader.Read(buffer)
		if n > 0 {
			if _, hashErr := h.Write(buffer[:n]); hashErr != nil {
				return "", fmt.Errorf("hash write error: %w", hashErr)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint streams the file at path through the configured algorithm.
// Open and read failures are returned as a domain ReadError.
func (c *DefaultCalculator) Fingerprint(ctx context.Context, fs afero.Fs, path string) (string, error) {
	file, err := fs.Open(path)
	if err != nil {
		return "", domain.NewReadError(domain.OpFingerprint, path, err)
	}
	defer file.Close()

	sum, err := c.Calculate(ctx, file, c.opts.Algorithm)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", domain.NewReadError(domain.OpFingerprint, path, err)
	}
	return sum, nil
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case XXH64:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	switch algo {
	case MD5, SHA256, XXH64:
		return true
	default:
		return false
	}
}
