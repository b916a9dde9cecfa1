package snapshot

import (
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// ExecDumper invokes the platform's dump utility, which writes arp.json and
// fdb.json into the target directory and signals failure via exit status.
type ExecDumper struct {
	Path string
}

func (d ExecDumper) Dump(ctx context.Context, dir string) error {
	out, err := exec.CommandContext(ctx, d.Path, "-t", dir).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s: %s", d.Path, strings.TrimSpace(string(out)))
	}
	return nil
}

// Available reports whether the dump utility exists on this host.
func (d ExecDumper) Available() bool {
	_, err := exec.LookPath(d.Path)
	return err == nil
}
