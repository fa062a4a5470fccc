// Package storage writes uploaded documents to the local filesystem under a
// per-project directory.
package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644

	maxNameLength = 120
)

var (
	ErrOutsideRoot = errors.New("path is outside the upload root")

	unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// File is an opened stored document.
type File interface {
	io.ReadSeekCloser
	Stat() (fs.FileInfo, error)
}

// Object describes a file written by Save.
type Object struct {
	Name string
	Path string
	Size int64
}

type Local struct {
	Root string
	Now  func() time.Time
}

func NewLocal(root string) *Local {
	return &Local{Root: root, Now: time.Now}
}

// Save streams src to {root}/{project}/{docType}-{ownerID}-{unixMillis}-{name}.
// A partially written file is removed before the error is returned.
func (l *Local) Save(project, docType string, ownerID int64, originalName string, src io.Reader) (Object, error) {
	dir := filepath.Join(l.Root, SanitizeFileName(project))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return Object{}, errors.Wrap(err, "create upload dir")
	}

	name := fmt.Sprintf("%s-%d-%d-%s", docType, ownerID, l.now().UnixMilli(), SanitizeFileName(originalName))
	path := filepath.Join(dir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return Object{}, errors.Wrap(err, "create upload file")
	}
	size, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return Object{}, errors.Wrap(copyErr, "write upload file")
		}
		return Object{}, errors.Wrap(closeErr, "close upload file")
	}
	return Object{Name: name, Path: path, Size: size}, nil
}

func (l *Local) Open(path string) (File, error) {
	resolved, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(resolved)
}

func (l *Local) Stat(path string) (fs.FileInfo, error) {
	resolved, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(resolved)
}

// Remove deletes path. A file that is already gone is not an error.
func (l *Local) Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	resolved, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) resolve(path string) (string, error) {
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Wrap(ErrOutsideRoot, path)
	}
	return target, nil
}

func (l *Local) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// SanitizeFileName folds accents, keeps the base name only and replaces
// anything outside [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(raw string) string {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), base)
	if err == nil {
		base = folded
	}
	base = strings.Trim(unsafeName.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return "file"
	}
	if len(base) > maxNameLength {
		ext := filepath.Ext(base)
		if len(ext) > 16 {
			ext = ""
		}
		base = base[:maxNameLength-len(ext)] + ext
	}
	return base
}
