// Package config loads host configuration for the cmd/syngd binary. The
// core packages (object, objectstore, tree, delta) take no dependency on
// this package; only storage backend selection and the demo command need
// it.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultBaseDirectoryPath is where syngd stores its configuration and, if
// using the disk backend with a relative disk-store-dir, its objects. Defaults to $SYNG_BASE if set,
// otherwise $HOME/lib/syng, matching the teacher's $MUSCLE_BASE convention.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("SYNG_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/syng")
	}
}

// C holds the settings a host needs to construct a storage.Store and run
// the propagation pipeline. It has no bearing on the object model, tree
// operations or delta protocol, which are pure and backend-agnostic.
type C struct {
	// Storage selects the backend: "memory", "disk", "s3", "null" or
	// "paired" (a disk store paired with an S3 store).
	Storage string

	// DiskStoreDir is where the disk backend keeps its files. If relative,
	// it is resolved against the base directory.
	DiskStoreDir string

	// S3Profile, S3Region and S3Bucket only make sense when Storage is "s3"
	// or "paired".
	// The AWS profile is used for credentials.
	S3Profile string
	S3Region  string
	S3Bucket  string

	// PropagationLog is where storage.Paired records pending writes to the
	// slow store, so they survive a restart. Only used by cmd/syngd when it
	// pairs a disk cache with an S3 backend.
	PropagationLog string

	base string
}

// Load loads the configuration from the file called "config" in the given
// base directory.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	if fi, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	} else if fi.Mode()&0077 != 0 {
		return nil, fmt.Errorf("config.Load %q: mode is %#o, want at most %#o",
			filename, fi.Mode()&0777, fi.Mode()&0700)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.DiskStoreDir != "" && !filepath.IsAbs(c.DiskStoreDir) {
		c.DiskStoreDir = filepath.Clean(filepath.Join(c.base, c.DiskStoreDir))
	}
	if c.PropagationLog == "" {
		c.PropagationLog = path.Join(c.base, "propagation.log")
	}
	if c.Storage == "" {
		c.Storage = "memory"
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, fmt.Errorf("load: no separator in %q", line)
		}
		switch key, val := line[:i], strings.TrimSpace(line[i:]); key {
		case "storage":
			c.Storage = val
		case "disk-store-dir":
			c.DiskStoreDir = val
		case "s3-bucket":
			c.S3Bucket = val
		case "s3-profile":
			c.S3Profile = val
		case "s3-region":
			c.S3Region = val
		case "propagation-log":
			c.PropagationLog = val
		default:
			return nil, fmt.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &c, nil
}

// Initialize generates an initial configuration at the given directory,
// defaulting to an in-memory store so a fresh syngd works with no further
// setup.
func Initialize(baseDir string) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("%q: could not mkdir: %w", baseDir, err)
	}
	filename := filepath.Join(baseDir, "config")
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("%q: already exists", filename)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%q: could not determine if it exists: %w", filename, err)
	}
	contents := "storage memory\n"
	if err := os.WriteFile(filename, []byte(contents), 0600); err != nil {
		return fmt.Errorf("config.Initialize %q: %w", filename, err)
	}
	return nil
}
