package covers

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	storage_go "github.com/supabase-community/storage-go"
)

// Size names a cover rendition. Each size lives under its own prefix.
type Size string

const (
	Full   Size = "full"
	Medium Size = "medium"
	Small  Size = "small"
	Thumb  Size = "thumb"
)

// Sizes lists every rendition, largest first.
var Sizes = []Size{Full, Medium, Small, Thumb}

// widths are the target widths of the resized renditions.
var widths = map[Size]int{
	Medium: 500,
	Small:  220,
	Thumb:  55,
}

// Storage stores cover files by size and name.
type Storage interface {
	Exists(ctx context.Context, size Size, name string) (bool, error)
	Read(ctx context.Context, size Size, name string) ([]byte, error)
	Write(ctx context.Context, size Size, name string, data []byte) error
	Delete(ctx context.Context, size Size, name string) error
	List(ctx context.Context, size Size) ([]string, error)
}

// FS stores covers on the local filesystem under root/<size>/<name>.
type FS struct {
	root string
}

// NewFS creates a filesystem storage rooted at root.
func NewFS(root string) *FS {
	return &FS{root: root}
}

func (f *FS) path(size Size, name string) string {
	return filepath.Join(f.root, string(size), name)
}

func (f *FS) Exists(_ context.Context, size Size, name string) (bool, error) {
	_, err := os.Stat(f.path(size, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "covers: stat %s/%s", size, name)
	}
	return true, nil
}

func (f *FS) Read(_ context.Context, size Size, name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(size, name))
	if err != nil {
		return nil, eris.Wrapf(err, "covers: read %s/%s", size, name)
	}
	return data, nil
}

func (f *FS) Write(_ context.Context, size Size, name string, data []byte) error {
	p := f.path(size, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return eris.Wrapf(err, "covers: create %s", size)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return eris.Wrapf(err, "covers: write %s/%s", size, name)
	}
	return nil
}

func (f *FS) Delete(_ context.Context, size Size, name string) error {
	err := os.Remove(f.path(size, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "covers: delete %s/%s", size, name)
	}
	return nil
}

func (f *FS) List(_ context.Context, size Size) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.root, string(size)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "covers: list %s", size)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// listPageSize is the page size of bucket listings.
const listPageSize = 1000

// Supabase stores covers in a Supabase Storage bucket under <size>/<name>.
type Supabase struct {
	client *storage_go.Client
	bucket string
}

// NewSupabase creates a bucket-backed storage.
func NewSupabase(client *storage_go.Client, bucket string) *Supabase {
	return &Supabase{client: client, bucket: bucket}
}

func (s *Supabase) key(size Size, name string) string {
	return path.Join(string(size), name)
}

// Exists lists the size prefix. Wrap the storage with NewCached to avoid a
// listing per call.
func (s *Supabase) Exists(ctx context.Context, size Size, name string) (bool, error) {
	names, err := s.List(ctx, size)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Supabase) Read(_ context.Context, size Size, name string) ([]byte, error) {
	data, err := s.client.DownloadFile(s.bucket, s.key(size, name))
	if err != nil {
		return nil, eris.Wrapf(err, "covers: download %s", s.key(size, name))
	}
	return data, nil
}

func (s *Supabase) Write(_ context.Context, size Size, name string, data []byte) error {
	contentType := "image/webp"
	upsert := true
	_, err := s.client.UploadFile(s.bucket, s.key(size, name), bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return eris.Wrapf(err, "covers: upload %s", s.key(size, name))
	}
	return nil
}

func (s *Supabase) Delete(_ context.Context, size Size, name string) error {
	if _, err := s.client.RemoveFile(s.bucket, []string{s.key(size, name)}); err != nil {
		return eris.Wrapf(err, "covers: remove %s", s.key(size, name))
	}
	return nil
}

func (s *Supabase) List(_ context.Context, size Size) ([]string, error) {
	var names []string
	for offset := 0; ; offset += listPageSize {
		objects, err := s.client.ListFiles(s.bucket, string(size), storage_go.FileSearchOptions{
			Limit:  listPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "covers: list %s", size)
		}
		for _, o := range objects {
			names = append(names, strings.TrimPrefix(o.Name, string(size)+"/"))
		}
		if len(objects) < listPageSize {
			return names, nil
		}
	}
}

// Cached memoizes existence per size after one listing of its prefix.
// Writes and deletes through it update only the affected entry.
type Cached struct {
	Storage
	known map[Size]map[string]bool
}

// NewCached wraps s with an existence cache.
func NewCached(s Storage) *Cached {
	return &Cached{Storage: s, known: make(map[Size]map[string]bool)}
}

func (c *Cached) Exists(ctx context.Context, size Size, name string) (bool, error) {
	set, ok := c.known[size]
	if !ok {
		names, err := c.Storage.List(ctx, size)
		if err != nil {
			return false, err
		}
		set = make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		c.known[size] = set
	}
	return set[name], nil
}

func (c *Cached) Write(ctx context.Context, size Size, name string, data []byte) error {
	if err := c.Storage.Write(ctx, size, name, data); err != nil {
		return err
	}
	if set, ok := c.known[size]; ok {
		set[name] = true
	}
	return nil
}

func (c *Cached) Delete(ctx context.Context, size Size, name string) error {
	if err := c.Storage.Delete(ctx, size, name); err != nil {
		return err
	}
	if set, ok := c.known[size]; ok {
		delete(set, name)
	}
	return nil
}
