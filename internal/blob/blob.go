// Package blob stores uploaded attachments and avatars.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// Prefix is the leading segment of every stored path.
const Prefix = "uploads/"

var (
	ErrNotFound    = errors.New("blob not found")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Store persists named blobs and hands back a stable relative path that is
// saved alongside the owning record.
type Store interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes a blob. Deleting a blob that does not exist is not an error.
	Delete(ctx context.Context, path string) error
}

var (
	ImageExts = map[string]bool{"png": true, "jpg": true, "jpeg": true, "gif": true}
	VideoExts = map[string]bool{"mp4": true, "avi": true, "mov": true, "webm": true}
)

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Allowed reports whether name carries one of the extensions in set.
func Allowed(name string, set map[string]bool) bool {
	return set[Ext(name)]
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Sanitize reduces a client supplied file name to ASCII letters, digits,
// dots, underscores and dashes. Directory components are dropped and the
// extension survives even when the base name does not.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)

	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i+1:]
	}

	clean := func(s string) string {
		s = strings.Join(strings.Fields(s), "_")
		s = unsafeChars.ReplaceAllString(s, "")
		return strings.Trim(s, "._")
	}
	base, ext = clean(base), clean(ext)

	if base == "" {
		base = "file"
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// GenerateName prefixes the sanitized name with a microsecond timestamp so two
// uploads of the same file never collide.
func GenerateName(now time.Time, original string) string {
	return fmt.Sprintf("%d_%s", now.UnixMicro(), Sanitize(original))
}

// cleanPath validates a stored path and returns its canonical form.
func cleanPath(p string) (string, error) {
	c := path.Clean(strings.TrimPrefix(p, "/"))
	if !strings.HasPrefix(c, Prefix) || strings.Contains(c, "..") {
		return "", fmt.Errorf("%w %q", ErrInvalidPath, p)
	}
	return c, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: name %q", ErrInvalidPath, name)
	}
	return nil
}

// Upload is a file received from a client, before it is stored.
type Upload struct {
	Filename string
	Body     io.Reader
}
