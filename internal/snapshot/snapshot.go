// Package snapshot captures the host's learned forwarding state (ARP and
// FDB tables) and stages it into the container that restores it after the
// new kernel boots. The orchestrator never interprets the contents; it only
// guarantees the snapshot is staged before the point of no return.
package snapshot

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/docker/go-units"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// ErrSnapshot marks forwarding-state capture failures. Callers treat these
// as best-effort: losing the snapshot degrades post-reboot convergence but
// does not make the reboot unsafe.
var ErrSnapshot = errors.New("forwarding state snapshot failure")

const (
	ARPFile = "arp.json"
	FDBFile = "fdb.json"
)

// Dumper writes arp.json and fdb.json into a directory.
type Dumper interface {
	Dump(ctx context.Context, dir string) error
}

// ContainerFS stages host files into a container's filesystem namespace.
type ContainerFS interface {
	CopyInto(ctx context.Context, container, hostPath, containerPath string) error
}

// Snapshot records where the captured state ended up.
type Snapshot struct {
	ARPPath   string
	FDBPath   string
	Container string
}

// Capturer runs the dump, compresses the result, and hands it over to the
// destination container.
type Capturer struct {
	Dir       string
	Container string
	Dumper    Dumper
	FS        ContainerFS
	Log       zerolog.Logger
}

// Capture produces the snapshot and copies it into the destination
// container. Ownership of the staged files transfers with the copy.
func (c *Capturer) Capture(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "create snapshot dir %s", c.Dir), ErrSnapshot)
	}

	if err := c.Dumper.Dump(ctx, c.Dir); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "dump forwarding state"), ErrSnapshot)
	}

	snap := &Snapshot{Container: c.Container}
	for _, name := range []string{ARPFile, FDBFile} {
		staged, err := c.stage(ctx, name)
		if err != nil {
			return nil, err
		}
		if name == ARPFile {
			snap.ARPPath = staged
		} else {
			snap.FDBPath = staged
		}
	}
	return snap, nil
}

func (c *Capturer) stage(ctx context.Context, name string) (string, error) {
	src := filepath.Join(c.Dir, name)
	dst := src + ".gz"
	size, err := compressFile(src, dst)
	if err != nil {
		return "", errors.Mark(err, ErrSnapshot)
	}
	if err := c.FS.CopyInto(ctx, c.Container, dst, "/"); err != nil {
		return "", errors.Mark(err, ErrSnapshot)
	}
	c.Log.Info().
		Str("file", filepath.Base(dst)).
		Str("container", c.Container).
		Str("size", units.HumanSize(float64(size))).
		Msg("staged forwarding state")
	return dst, nil
}

// compressFile gzips src into dst and returns the compressed size.
func compressFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return 0, errors.Wrapf(err, "compress %s", src)
	}
	if err := gz.Close(); err != nil {
		return 0, errors.Wrapf(err, "finish %s", dst)
	}

	st, err := out.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", dst)
	}
	return st.Size(), nil
}
