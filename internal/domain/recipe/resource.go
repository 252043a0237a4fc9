package recipe

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrMalformedResource is returned when a resource declaration does not match
// the line grammar: URL, URL LOCAL_NAME, or URL LOCAL_NAME ALGORITHM DIGEST.
// A hash algorithm without a digest value (three tokens) is malformed.
var ErrMalformedResource = errors.New("malformed resource line")

// Token counts accepted by the resource line grammar.
const (
	fieldsURLOnly      = 1
	fieldsWithName     = 2
	fieldsWithChecksum = 4
)

// Resource is a downloadable artifact declared by a recipe.
type Resource struct {
	// URL is the declared origin of the artifact.
	URL string
	// Name is the local filename the artifact is stored under, relative to
	// the recipe's resource directory.
	Name string
	// Algorithm names the digest used to verify the artifact, empty when the
	// declaration carries no checksum.
	Algorithm string
	// Digest is the expected digest value paired with Algorithm.
	Digest string
}

// HasChecksum reports whether the declaration carries a checksum pair.
func (r Resource) HasChecksum() bool {
	return r.Algorithm != ""
}

// ParseResource parses a single declaration line.
// Grammar: URL [LOCAL_NAME [ALGORITHM DIGEST]] with whitespace-separated
// tokens; exactly three tokens is invalid because a hash algorithm requires a
// value.
func ParseResource(line string) (Resource, error) {
	fields := strings.Fields(line)

	var res Resource

	switch len(fields) {
	case fieldsURLOnly:
		name, err := defaultLocalName(fields[0])
		if err != nil {
			return res, fmt.Errorf("resource line %q: %w", line, err)
		}

		res = Resource{URL: fields[0], Name: name}
	case fieldsWithName:
		res = Resource{URL: fields[0], Name: fields[1]}
	case fieldsWithChecksum:
		res = Resource{
			URL:       fields[0],
			Name:      fields[1],
			Algorithm: fields[2],
			Digest:    fields[3],
		}
	default:
		return res, fmt.Errorf("resource line %q has %d fields: %w",
			line, len(fields), ErrMalformedResource)
	}

	if err := validateLocalName(res.Name); err != nil {
		return Resource{}, fmt.Errorf("resource line %q: %w", line, err)
	}

	return res, nil
}

// ParseResources parses newline-delimited declarations, skipping blank lines.
// The first malformed line fails the whole batch so a fetch never starts on
// partially understood input.
func ParseResources(text string) ([]Resource, error) {
	var resources []Resource

	scanner := bufio.NewScanner(strings.NewReader(text))
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		res, err := ParseResource(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNumber, err)
		}

		resources = append(resources, res)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read resource lines: %w", err)
	}

	return resources, nil
}

// defaultLocalName derives the local filename from the URL path basename.
func defaultLocalName(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedResource, err)
	}

	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%w: no filename in URL path", ErrMalformedResource)
	}

	return name, nil
}

// validateLocalName rejects names that would escape the resource directory.
func validateLocalName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: unusable local name %q", ErrMalformedResource, name)
	}

	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: local name %q contains a path separator",
			ErrMalformedResource, name)
	}

	return nil
}
