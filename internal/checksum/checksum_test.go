package checksum

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// helloWorldSHA256 is the sha256 digest of the literal "hello world".
const helloWorldSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func writeFixture(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

// TestVerify_Match verifies a correct digest passes.
func TestVerify_Match(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "hello world")
	require.NoError(t, Verify(context.Background(), path, "sha256", helloWorldSHA256))
}

// TestVerify_NormalizesExpected verifies case and surrounding whitespace in
// the declared value do not cause spurious mismatches.
func TestVerify_NormalizesExpected(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "hello world")
	padded := "  " + helloWorldSHA256 + "\n"
	require.NoError(t, Verify(context.Background(), path, "sha256", padded))

	upper := "B94D27B9934D3E08A52E52D7DA7DABFAC484EFE37A5380EE9088F7ACE2EFCDE9"
	require.NoError(t, Verify(context.Background(), path, "SHA256", upper))
}

// TestVerify_Mismatch verifies a wrong digest yields a MismatchError carrying
// both values.
func TestVerify_Mismatch(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "hello world")

	err := Verify(context.Background(), path, "sha256", "0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)

	var mismatch *MismatchError

	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, helloWorldSHA256, mismatch.Actual)
	require.Equal(t, "sha256", mismatch.Algorithm)
}

// TestVerify_UnknownAlgorithm verifies the configuration error kind is
// distinct from a mismatch.
func TestVerify_UnknownAlgorithm(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "hello world")

	err := Verify(context.Background(), path, "crc32", "deadbeef")
	require.ErrorIs(t, err, ErrUnknownAlgorithm)

	var mismatch *MismatchError

	require.False(t, errors.As(err, &mismatch))
}

// TestVerify_WeakAlgorithmStillPasses verifies legacy digests verify
// successfully; the advisory is informational only.
func TestVerify_WeakAlgorithmStillPasses(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "hello world")

	// Well-known sha1 of "hello world".
	require.NoError(t, Verify(context.Background(), path, "sha1",
		"2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"))
	require.True(t, IsWeak("sha1"))
	require.True(t, IsWeak("MD5"))
	require.False(t, IsWeak("sha256"))
}

// TestVerify_MissingFile verifies I/O failures are not reported as mismatches.
func TestVerify_MissingFile(t *testing.T) {
	t.Parallel()

	err := Verify(context.Background(),
		filepath.Join(t.TempDir(), "absent"), "sha256", helloWorldSHA256)
	require.Error(t, err)

	var mismatch *MismatchError

	require.False(t, errors.As(err, &mismatch))
}

// TestFileDigest_EmptyFile verifies digests stream correctly from disk.
func TestFileDigest_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "")

	digest, err := FileDigest(path, "sha256")
	require.NoError(t, err)

	// Well-known sha256 of empty input.
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", digest)
}
