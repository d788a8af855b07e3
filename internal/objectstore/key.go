package objectstore

import (
	"fmt"
	"strings"
)

// URIScheme prefixes object store destinations.
const URIScheme = "s3://"

// IsURI reports whether path names an object store destination.
func IsURI(path string) bool {
	return strings.HasPrefix(path, URIScheme)
}

// ParseURI splits s3://bucket/key into its bucket and key. Both must be
// non-empty; the key keeps any further slashes.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("objectstore: %q is not an %s URI", uri, URIScheme)
	}
	trimmed := strings.TrimPrefix(uri, URIScheme)
	bucket, key, _ = strings.Cut(trimmed, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("objectstore: %q must name a bucket and a key", uri)
	}
	return bucket, key, nil
}
