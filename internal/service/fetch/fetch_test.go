package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rduplain/reqd/internal/checksum"
	"github.com/rduplain/reqd/internal/domain/recipe"
)

// helloDigest is the sha256 digest of "hello world".
const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

// newArtifactServer serves fixed content at every path and counts requests.
func newArtifactServer(t *testing.T, content string) (*httptest.Server, *int) {
	t.Helper()

	hits := new(int)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*hits++

		_, _ = io.WriteString(w, content)
	}))
	t.Cleanup(server.Close)

	return server, hits
}

// TestFetch_DownloadAndVerify covers the happy path of a checksummed download.
func TestFetch_DownloadAndVerify(t *testing.T) {
	t.Parallel()

	server, hits := newArtifactServer(t, "hello world")
	destDir := t.TempDir()

	declarations := server.URL + "/pub/hello.txt hello.txt sha256 " + helloDigest

	result, err := New("", nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Equal(t, 1, *hits)

	contents, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(contents))

	_, err = os.Stat(filepath.Join(destDir, "hello.txt"+RejectSuffix))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetch_MismatchRejectsArtifact ensures a corrupt download is moved
// aside instead of keeping its final name.
func TestFetch_MismatchRejectsArtifact(t *testing.T) {
	t.Parallel()

	server, _ := newArtifactServer(t, "tampered contents")
	destDir := t.TempDir()

	declarations := server.URL + "/pub/hello.txt hello.txt sha256 " + helloDigest

	_, err := New("", nil).Fetch(context.Background(), "redis", declarations, destDir)

	var mismatch *checksum.MismatchError

	require.ErrorAs(t, err, &mismatch)

	_, err = os.Stat(filepath.Join(destDir, "hello.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	rejected, err := os.ReadFile(filepath.Join(destDir, "hello.txt"+RejectSuffix))
	require.NoError(t, err)
	require.Equal(t, "tampered contents", string(rejected))
}

// TestFetch_ExistingArtifactSkipsTransfer confirms presence short-circuits
// the network while verification still runs.
func TestFetch_ExistingArtifactSkipsTransfer(t *testing.T) {
	t.Parallel()

	server, hits := newArtifactServer(t, "hello world")
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(destDir, "hello.txt"), []byte("hello world"), 0o644))

	declarations := server.URL + "/pub/hello.txt hello.txt sha256 " + helloDigest

	result, err := New("", nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Zero(t, *hits)
}

// TestFetch_ExistingCorruptArtifactFails ensures a cached corrupt file is
// rejected without being re-downloaded.
func TestFetch_ExistingCorruptArtifactFails(t *testing.T) {
	t.Parallel()

	server, hits := newArtifactServer(t, "hello world")
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(destDir, "hello.txt"), []byte("rotted"), 0o644))

	declarations := server.URL + "/pub/hello.txt hello.txt sha256 " + helloDigest

	_, err := New("", nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.Error(t, err)
	require.Zero(t, *hits)

	_, err = os.Stat(filepath.Join(destDir, "hello.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(filepath.Join(destDir, "hello.txt"+RejectSuffix))
	require.NoError(t, err)
}

// TestFetch_MirrorReplacesURL checks the mirror path composition and that
// the origin is never contacted.
func TestFetch_MirrorReplacesURL(t *testing.T) {
	t.Parallel()

	origin, originHits := newArtifactServer(t, "origin copy")
	destDir := t.TempDir()

	var mirrorPath string

	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mirrorPath = r.URL.Path

		_, _ = io.WriteString(w, "hello world")
	}))
	t.Cleanup(mirror.Close)

	declarations := origin.URL + "/pub/hello.txt hello.txt sha256 " + helloDigest

	result, err := New(mirror.URL+"/cache", nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Zero(t, *originHits)
	require.Equal(t, "/cache/redis/hello.txt", mirrorPath)
}

// TestFetch_MirrorMissingIsFatal ensures mirror mode never falls back to
// the declared URL.
func TestFetch_MirrorMissingIsFatal(t *testing.T) {
	t.Parallel()

	origin, originHits := newArtifactServer(t, "origin copy")
	destDir := t.TempDir()

	mirror := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(mirror.Close)

	declarations := origin.URL + "/pub/hello.txt"

	_, err := New(mirror.URL, nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.ErrorIs(t, err, errBadHTTPStatus)
	require.Zero(t, *originHits)

	_, err = os.Stat(filepath.Join(destDir, "hello.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetch_MalformedBatchAbortsBeforeTransfer ensures parsing the whole
// batch precedes any network activity.
func TestFetch_MalformedBatchAbortsBeforeTransfer(t *testing.T) {
	t.Parallel()

	server, hits := newArtifactServer(t, "hello world")
	destDir := t.TempDir()

	declarations := server.URL + "/pub/a.txt\n" + server.URL + "/pub/b.txt b.txt sha256\n"

	_, err := New("", nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.ErrorIs(t, err, recipe.ErrMalformedResource)
	require.Zero(t, *hits)
}

// TestFetch_NoChecksumStillFetches covers the degraded-trust path.
func TestFetch_NoChecksumStillFetches(t *testing.T) {
	t.Parallel()

	server, _ := newArtifactServer(t, "unverified payload")
	destDir := t.TempDir()

	result, err := New("", nil).Fetch(context.Background(), "redis", server.URL+"/pub/blob.bin", destDir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)

	contents, err := os.ReadFile(filepath.Join(destDir, "blob.bin"))
	require.NoError(t, err)
	require.Equal(t, "unverified payload", string(contents))
}

// TestFetch_SuccessClearsStaleReject ensures a verified artifact removes
// the leftover of an earlier failed attempt.
func TestFetch_SuccessClearsStaleReject(t *testing.T) {
	t.Parallel()

	server, _ := newArtifactServer(t, "hello world")
	destDir := t.TempDir()

	stale := filepath.Join(destDir, "hello.txt"+RejectSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("rotted"), 0o644))

	declarations := server.URL + "/pub/hello.txt hello.txt sha256 " + helloDigest

	_, err := New("", nil).Fetch(context.Background(), "redis", declarations, destDir)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	require.ErrorIs(t, err, os.ErrNotExist)
}
