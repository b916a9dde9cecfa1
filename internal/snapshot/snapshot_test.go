package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

type fakeDumper struct {
	err error
}

func (d fakeDumper) Dump(ctx context.Context, dir string) error {
	if d.err != nil {
		return d.err
	}
	for _, name := range []string{ARPFile, FDBFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(`[{"mac":"00:11:22:33:44:55"}]`), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type copyCall struct {
	container, hostPath, containerPath string
}

type fakeFS struct {
	calls []copyCall
	err   error
}

func (f *fakeFS) CopyInto(ctx context.Context, container, hostPath, containerPath string) error {
	f.calls = append(f.calls, copyCall{container, hostPath, containerPath})
	return f.err
}

func newCapturer(t *testing.T, d Dumper, fs ContainerFS) *Capturer {
	t.Helper()
	return &Capturer{
		Dir:       filepath.Join(t.TempDir(), "fast-reboot"),
		Container: "swss",
		Dumper:    d,
		FS:        fs,
		Log:       zerolog.Nop(),
	}
}

func TestCaptureStagesBothTables(t *testing.T) {
	fs := &fakeFS{}
	c := newCapturer(t, fakeDumper{}, fs)

	snap, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error: %v", err)
	}

	if len(fs.calls) != 2 {
		t.Fatalf("copy calls = %d, want 2", len(fs.calls))
	}
	for _, call := range fs.calls {
		if call.container != "swss" {
			t.Errorf("copied into %q, want swss", call.container)
		}
		if call.containerPath != "/" {
			t.Errorf("container path = %q, want /", call.containerPath)
		}
	}

	for _, path := range []string{snap.ARPPath, snap.FDBPath} {
		if filepath.Ext(path) != ".gz" {
			t.Errorf("staged file %q not compressed", path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("staged file missing: %v", err)
		}
	}
}

func TestCaptureDumperFailure(t *testing.T) {
	fs := &fakeFS{}
	c := newCapturer(t, fakeDumper{err: errors.New("dump tool crashed")}, fs)

	_, err := c.Capture(context.Background())
	if !errors.Is(err, ErrSnapshot) {
		t.Errorf("error not marked ErrSnapshot: %v", err)
	}
	if len(fs.calls) != 0 {
		t.Errorf("no files should be staged after dump failure, got %d copies", len(fs.calls))
	}
}

func TestCaptureCopyFailure(t *testing.T) {
	fs := &fakeFS{err: errors.New("container gone")}
	c := newCapturer(t, fakeDumper{}, fs)

	_, err := c.Capture(context.Background())
	if !errors.Is(err, ErrSnapshot) {
		t.Errorf("error not marked ErrSnapshot: %v", err)
	}
}
