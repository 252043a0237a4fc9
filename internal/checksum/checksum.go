package checksum

import (
	"context"
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rduplain/reqd/internal/logger"

	// Ensure digest implementations are linked for verification.
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

var (
	// ErrUnknownAlgorithm is returned when a resource declares a digest
	// algorithm outside the supported family. It is a configuration error,
	// distinct from a verification mismatch.
	ErrUnknownAlgorithm = errors.New("unknown checksum algorithm")

	// errHashUnavailable is returned when a known algorithm is not linked
	// into the binary.
	errHashUnavailable = errors.New("hash function unavailable")
)

// hashesByName maps declared algorithm names to their digest primitives.
var hashesByName = map[string]crypto.Hash{
	"md5":    crypto.MD5,
	"sha1":   crypto.SHA1,
	"sha224": crypto.SHA224,
	"sha256": crypto.SHA256,
	"sha384": crypto.SHA384,
	"sha512": crypto.SHA512,
}

// MismatchError reports a digest that did not match its expected value.
// Callers use it to decide to discard the artifact.
type MismatchError struct {
	// Path is the file that failed verification.
	Path string
	// Algorithm is the digest algorithm used.
	Algorithm string
	// Expected is the declared digest value, normalized.
	Expected string
	// Actual is the computed digest value.
	Actual string
}

// Error renders the mismatch with both digest values for diagnosis.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s mismatch: expected %s, got %s",
		e.Path, e.Algorithm, e.Expected, e.Actual)
}

// IsWeak reports whether the named algorithm belongs to a legacy digest
// family that should no longer be trusted for integrity.
func IsWeak(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "md5", "sha1":
		return true
	default:
		return false
	}
}

// FileDigest computes the named digest of a file as lowercase hex.
func FileDigest(path, algorithm string) (string, error) {
	hashFunction, err := lookup(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open for digest: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := hashFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify computes the digest of the file at path and compares it against the
// expected value. The expected value is whitespace-trimmed and compared
// case-insensitively against the lowercase hex the primitive produces.
// A mismatch is a *MismatchError; an unknown algorithm is ErrUnknownAlgorithm.
func Verify(ctx context.Context, path, algorithm, expected string) error {
	if IsWeak(algorithm) {
		logger.Warnf(ctx, "%s uses weak %s checksum, consider upgrading verification",
			filepath.Base(path), strings.TrimSpace(algorithm))
	}

	actual, err := FileDigest(path, algorithm)
	if err != nil {
		return err
	}

	want := strings.ToLower(strings.TrimSpace(expected))
	if actual != want {
		return &MismatchError{
			Path:      path,
			Algorithm: strings.ToLower(strings.TrimSpace(algorithm)),
			Expected:  want,
			Actual:    actual,
		}
	}

	return nil
}

// lookup resolves an algorithm name to an available digest primitive.
func lookup(name string) (crypto.Hash, error) {
	hashFunction, ok := hashesByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrUnknownAlgorithm)
	}

	if !hashFunction.Available() {
		return 0, fmt.Errorf("%q: %w", name, errHashUnavailable)
	}

	return hashFunction, nil
}
