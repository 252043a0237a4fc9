package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/rduplain/reqd/internal/checksum"
	"github.com/rduplain/reqd/internal/cleanup"
	"github.com/rduplain/reqd/internal/config"
	"github.com/rduplain/reqd/internal/domain/recipe"
	"github.com/rduplain/reqd/internal/logger"
)

// Fetcher materializes declared resources into per-recipe directories,
// optionally redirecting every transfer through a mirror.
type Fetcher struct {
	// mirror is the base URL replacing every declared URL when set.
	mirror string
	// client performs the HTTP transfers.
	client *http.Client
}

// Result summarizes a completed fetch batch.
type Result struct {
	// Count is the number of declared resources, transferred or reused.
	Count int
}

// RejectSuffix marks artifacts set aside after a failed transfer or
// verification.
const RejectSuffix = ".rej"

// errBadHTTPStatus is returned when a transfer answers with a non-OK status.
var errBadHTTPStatus = errors.New("bad HTTP status")

// New creates a Fetcher. An empty mirror means resources are fetched from
// their declared URLs. A nil client falls back to http.DefaultClient.
func New(mirror string, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		mirror: mirror,
		client: client,
	}
}

// Fetch parses the declarations and materializes each resource in destDir.
// The whole batch is parsed before any transfer starts, and the first
// failure aborts the rest. Artifacts already present are not transferred
// again but are still verified.
func (f *Fetcher) Fetch(ctx context.Context, recipeName, declarations, destDir string) (*Result, error) {
	resources, err := recipe.ParseResources(declarations)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, config.DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("create resource directory: %w", err)
	}

	for _, resource := range resources {
		if err := f.fetchOne(ctx, recipeName, resource, destDir); err != nil {
			return nil, fmt.Errorf("resource %s: %w", resource.Name, err)
		}
	}

	return &Result{Count: len(resources)}, nil
}

// fetchOne transfers and verifies a single resource. Once a failure is
// possible, a rollback entry guarantees the artifact's final name never
// holds an unverified file, on error returns and on cancellation alike.
func (f *Fetcher) fetchOne(ctx context.Context, recipeName string, res recipe.Resource, destDir string) error {
	localPath := filepath.Join(destDir, res.Name)

	exists, err := fileExists(localPath)
	if err != nil {
		return err
	}

	guard := cleanup.New()
	defer guard.Run()

	guard.Push(func() {
		reject(ctx, localPath)
	})

	if exists {
		logger.DebugKV(ctx, "Resource already present", "path", localPath)
	} else if err := f.transfer(ctx, recipeName, res, localPath); err != nil {
		return err
	}

	if err := f.verify(ctx, res, localPath); err != nil {
		return err
	}

	guard.Cancel()
	clearReject(ctx, localPath)

	return nil
}

// transfer streams the resource into localPath. With a mirror configured
// the declared URL is ignored entirely; a missing mirrored artifact is a
// hard failure, never a reason to fall back to the origin.
func (f *Fetcher) transfer(ctx context.Context, recipeName string, res recipe.Resource, localPath string) error {
	effectiveURL, err := f.effectiveURL(recipeName, res)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Fetching resource", "url", effectiveURL, "path", localPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, effectiveURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	response, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", effectiveURL, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", effectiveURL, response.Status, errBadHTTPStatus)
	}

	outputFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}

	if _, err := io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()

		return fmt.Errorf("write %s: %w", localPath, err)
	}

	if err := outputFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", localPath, err)
	}

	return nil
}

// effectiveURL resolves the address to fetch from. A configured mirror
// replaces the declared URL with <mirror>/<recipe name>/<local name>.
func (f *Fetcher) effectiveURL(recipeName string, res recipe.Resource) (string, error) {
	if f.mirror == "" {
		return res.URL, nil
	}

	mirrorURL, err := url.Parse(f.mirror)
	if err != nil {
		return "", fmt.Errorf("parse mirror URL: %w", err)
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	mirrorURL.Path = path.Join(mirrorURL.Path, recipeName, res.Name)

	return mirrorURL.String(), nil
}

// verify checks the artifact against its declared checksum. Resources
// declared without one pass with a warning so the degraded trust is
// visible to the caller.
func (f *Fetcher) verify(ctx context.Context, res recipe.Resource, localPath string) error {
	if !res.HasChecksum() {
		logger.WarnKV(ctx, "No checksum declared, skipping verification", "path", localPath)

		return nil
	}

	return checksum.Verify(ctx, localPath, res.Algorithm, res.Digest)
}

// reject quarantines whatever occupies path under the reject suffix. A
// missing file means the transfer never got that far and needs no cleanup.
func reject(ctx context.Context, localPath string) {
	rejectedPath := localPath + RejectSuffix

	err := os.Rename(localPath, rejectedPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}

	if err != nil {
		logger.ErrorKV(ctx, "Could not quarantine artifact", "path", localPath, "error", err)

		return
	}

	logger.WarnKV(ctx, "Rejected artifact", "path", rejectedPath)
}

// clearReject drops a quarantined leftover once a verified artifact holds
// the final name.
func clearReject(ctx context.Context, localPath string) {
	rejectedPath := localPath + RejectSuffix

	if err := os.Remove(rejectedPath); err == nil {
		logger.DebugKV(ctx, "Removed stale rejected artifact", "path", rejectedPath)
	}
}

func fileExists(localPath string) (bool, error) {
	_, err := os.Stat(localPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat %s: %w", localPath, err)
	}

	return true, nil
}
