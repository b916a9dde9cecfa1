package orchestrator

import (
	"os"

	"github.com/cockroachdb/errors"
)

// ErrPermission marks a run attempted without the authority to stage
// kernels and kill system services.
var ErrPermission = errors.New("insufficient privilege")

// Mockable for testing.
var geteuid = os.Geteuid

// EnsurePrivileged refuses to proceed unless running as root. No side
// effects; must run before any other component.
func EnsurePrivileged() error {
	if id := geteuid(); id != 0 {
		return errors.Mark(errors.Newf("must run as root (euid %d)", id), ErrPermission)
	}
	return nil
}
