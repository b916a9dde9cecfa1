// Package initsystem talks to the host init system and process table: stop a
// named service, kill a named process. The orchestrator only knows names;
// everything here is how those names get acted on.
package initsystem

import (
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// Mockable command runner for testing.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ServiceManager stops named services.
type ServiceManager interface {
	Stop(ctx context.Context, unit string) error
}

// ProcessKiller terminates named processes.
type ProcessKiller interface {
	Kill(ctx context.Context, name string) error
}

// Systemd manages services through systemctl.
type Systemd struct{}

func (Systemd) Stop(ctx context.Context, unit string) error {
	out, err := runCommand(ctx, "systemctl", "stop", unit)
	if err != nil {
		return errors.Wrapf(err, "systemctl stop %s: %s", unit, strings.TrimSpace(string(out)))
	}
	return nil
}

// Pkill kills processes by exact name with SIGKILL. A graceful stop is not
// wanted here: letting routing daemons run their shutdown handlers would
// emit the peer notifications the fast path exists to suppress.
type Pkill struct{}

func (Pkill) Kill(ctx context.Context, name string) error {
	out, err := runCommand(ctx, "pkill", "-9", "-x", name)
	if err != nil {
		var exitErr *exec.ExitError
		// Exit status 1 means no process matched; already gone is fine.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil
		}
		return errors.Wrapf(err, "pkill %s: %s", name, strings.TrimSpace(string(out)))
	}
	return nil
}
