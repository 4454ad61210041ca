package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

//go:embed catalogs/*.yaml
var embedded embed.FS

// DefaultFile is the embedded catalog shipped with the binary.
const DefaultFile = "catalogs/default.yaml"

// ErrNotFound is returned when a requested catalog version is not loaded.
var ErrNotFound = errors.New("catalog version not found")

// Provider loads versioned catalogs. Returned catalogs are shared and must
// be treated as read-only.
type Provider interface {
	Get(ctx context.Context, version string) (*Catalog, error)
	Latest(ctx context.Context) (*Catalog, error)
}

// Default parses the embedded default catalog.
func Default() (*Catalog, error) {
	data, err := embedded.ReadFile(DefaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return Parse(data)
}

// LoadFile reads and validates a single catalog file.
func LoadFile(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", filename, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

// FSProvider serves the embedded catalogs plus any *.yaml files found in an
// optional directory. Directory files override embedded ones that declare
// the same version. The set is loaded lazily and replaced atomically by
// Reload, so a broken file on disk never evicts the last good set.
type FSProvider struct {
	dir            string
	defaultVersion string

	group singleflight.Group
	mu    sync.RWMutex
	set   map[string]*Catalog
}

// NewFSProvider creates a provider. dir may be empty. defaultVersion selects
// the catalog returned by Latest; when empty the highest version wins.
func NewFSProvider(dir, defaultVersion string) *FSProvider {
	return &FSProvider{dir: dir, defaultVersion: defaultVersion}
}

// Dir returns the watched catalog directory, if any.
func (p *FSProvider) Dir() string { return p.dir }

func (p *FSProvider) Get(ctx context.Context, version string) (*Catalog, error) {
	set, err := p.loaded(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := set[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, version)
	}
	return c, nil
}

func (p *FSProvider) Latest(ctx context.Context) (*Catalog, error) {
	if p.defaultVersion != "" {
		return p.Get(ctx, p.defaultVersion)
	}
	versions, err := p.Versions(ctx)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return p.Get(ctx, versions[len(versions)-1])
}

// Versions lists the loaded catalog versions in ascending order.
func (p *FSProvider) Versions(ctx context.Context) ([]string, error) {
	set, err := p.loaded(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Reload re-reads every source. On failure the previous set stays active.
func (p *FSProvider) Reload(ctx context.Context) error {
	_, err := p.load(ctx)
	return err
}

func (p *FSProvider) loaded(ctx context.Context) (map[string]*Catalog, error) {
	p.mu.RLock()
	set := p.set
	p.mu.RUnlock()
	if set != nil {
		return set, nil
	}
	return p.load(ctx)
}

func (p *FSProvider) load(ctx context.Context) (map[string]*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := p.group.Do("load", func() (any, error) {
		set := make(map[string]*Catalog)
		if err := readDir(embedded, "catalogs", set); err != nil {
			return nil, err
		}
		if p.dir != "" {
			if err := readDir(os.DirFS(p.dir), ".", set); err != nil {
				return nil, err
			}
		}
		p.mu.Lock()
		p.set = set
		p.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*Catalog), nil
}

// readDir parses every YAML file in dir. A version may appear only once per
// source directory; later sources override earlier ones.
func readDir(fsys fs.FS, dir string, set map[string]*Catalog) error {
	var names []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("list catalogs: %w", err)
		}
		names = append(names, matches...)
	}
	sort.Strings(names)

	seen := make(map[string]string)
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read catalog %s: %w", name, err)
		}
		c, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := seen[c.Version]; dup {
			return fmt.Errorf("catalog version %q declared by both %s and %s", c.Version, prev, name)
		}
		seen[c.Version] = name
		set[c.Version] = c
	}
	return nil
}
