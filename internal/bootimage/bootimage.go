package bootimage

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// Marker is appended to the kernel command line so the next boot can tell it
// came in through the fast path instead of a cold start.
const Marker = "fast-reboot"

// ErrConfig indicates the running system does not look like a host this
// orchestrator can reboot (kernel or initrd missing from the well-known
// locations).
var ErrConfig = errors.New("boot configuration error")

// BootImage describes what gets staged into the kernel-transfer mechanism.
type BootImage struct {
	KernelPath string
	InitrdPath string
	Append     []string
}

// AppendLine returns the append options as a single kernel command line.
func (b BootImage) AppendLine() string {
	return strings.Join(b.Append, " ")
}

// Resolver builds a BootImage from the currently running boot configuration.
// Kernel and initrd live at fixed well-known paths; the host platform is
// responsible for placing the next image there.
type Resolver struct {
	KernelPath  string
	InitrdPath  string
	CmdlinePath string
}

// Resolve reads the running kernel's command line and returns a BootImage
// carrying it, with Marker inserted exactly once. Resolving twice against an
// already-marked command line does not duplicate the token.
func (r Resolver) Resolve() (BootImage, error) {
	if _, err := os.Stat(r.KernelPath); err != nil {
		return BootImage{}, errors.Mark(errors.Wrapf(err, "kernel not found at %s", r.KernelPath), ErrConfig)
	}
	if _, err := os.Stat(r.InitrdPath); err != nil {
		return BootImage{}, errors.Mark(errors.Wrapf(err, "initrd not found at %s", r.InitrdPath), ErrConfig)
	}

	raw, err := os.ReadFile(r.CmdlinePath)
	if err != nil {
		return BootImage{}, errors.Mark(errors.Wrapf(err, "read %s", r.CmdlinePath), ErrConfig)
	}

	return BootImage{
		KernelPath: r.KernelPath,
		InitrdPath: r.InitrdPath,
		Append:     withMarker(strings.Fields(string(raw))),
	}, nil
}

// withMarker appends Marker unless it is already present.
func withMarker(tokens []string) []string {
	for _, t := range tokens {
		if t == Marker {
			return tokens
		}
	}
	return append(tokens, Marker)
}
