//go:build linux

// Package kexec wraps the kernel-transfer mechanism: staging a new kernel
// image from the running one and jumping to it without going back through
// firmware.
package kexec

import (
	"context"
	"os"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/switchboot/fast-reboot/internal/bootimage"
)

// ErrTransferMechanism marks any failure reported by the kernel-transfer
// mechanism itself (stage, unload, execute).
var ErrTransferMechanism = errors.New("kernel transfer mechanism failure")

const (
	defaultLoadedPath = "/sys/kernel/kexec_loaded"
	lockdownPath      = "/sys/kernel/security/lockdown"
	sysctlPath        = "/proc/sys/kernel/kexec_load_disabled"
)

// Mockable syscall functions for testing.
var (
	kexecFileLoad = unix.KexecFileLoad
	rebootFunc    = unix.Reboot
)

// Mechanism drives kexec_file_load and the final reboot(KEXEC) call. It owns
// the single staged-image slot for the duration of a run.
type Mechanism struct {
	// LoadedPath is the sysfs file reporting whether a kernel is staged.
	LoadedPath string
}

func New() *Mechanism {
	return &Mechanism{LoadedPath: defaultLoadedPath}
}

// Staged reports whether a kernel transfer is already staged.
func (m *Mechanism) Staged() (bool, error) {
	raw, err := os.ReadFile(m.LoadedPath)
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "read %s", m.LoadedPath), ErrTransferMechanism)
	}
	return strings.TrimSpace(string(raw)) == "1", nil
}

// Unload clears a staged kernel transfer.
func (m *Mechanism) Unload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := kexecFileLoad(-1, -1, "", unix.KEXEC_FILE_UNLOAD); err != nil {
		return errors.Mark(errors.Wrap(err, "kexec unload"), ErrTransferMechanism)
	}
	return nil
}

// EnsureUnstaged reads the staged flag and clears it if set, so that at most
// one staged transfer exists when Load runs. Proceeding with a second stage
// on top of an existing one is undefined, so a failed unload is fatal.
func (m *Mechanism) EnsureUnstaged(ctx context.Context) error {
	staged, err := m.Staged()
	if err != nil {
		return err
	}
	if !staged {
		return nil
	}
	return m.Unload(ctx)
}

// Load stages the boot image into the kernel-transfer mechanism. Reversible
// via Unload until Execute is called.
func (m *Mechanism) Load(ctx context.Context, img bootimage.BootImage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kernel, err := os.Open(img.KernelPath)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "open kernel"), ErrTransferMechanism)
	}
	defer kernel.Close()

	initrd, err := os.Open(img.InitrdPath)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "open initrd"), ErrTransferMechanism)
	}
	defer initrd.Close()

	if err := kexecFileLoad(int(kernel.Fd()), int(initrd.Fd()), img.AppendLine(), 0); err != nil {
		return errors.Mark(translateLoadError(err), ErrTransferMechanism)
	}
	return nil
}

// Execute jumps to the staged kernel. On success it does not return; the
// running kernel is replaced. Failure is fatal and unrecoverable.
func (m *Mechanism) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rebootFunc(unix.LINUX_REBOOT_CMD_KEXEC); err != nil {
		return errors.Mark(errors.Wrap(err, "reboot(KEXEC)"), ErrTransferMechanism)
	}
	// Not reached: the reboot call replaces the running kernel.
	return nil
}

// translateLoadError turns kexec_file_load errnos into actionable messages.
func translateLoadError(err error) error {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return errors.Wrap(err, "kexec load")
	}

	switch errno {
	case unix.ENOSYS:
		return errors.New("kexec support is disabled in the kernel (CONFIG_KEXEC_FILE not enabled)")
	case unix.EPERM:
		lockdownData, _ := os.ReadFile(lockdownPath)
		lockdown := strings.TrimSpace(string(lockdownData))
		if strings.Contains(lockdown, "[confidentiality]") || strings.Contains(lockdown, "[integrity]") {
			return errors.Newf("kexec blocked: kernel is in lockdown mode (%s); boot with 'lockdown=none' or disable Secure Boot", lockdown)
		}
		sysctlData, _ := os.ReadFile(sysctlPath)
		if strings.TrimSpace(string(sysctlData)) == "1" {
			return errors.New("kexec is disabled via sysctl; run: sysctl -w kernel.kexec_load_disabled=0")
		}
		return errors.New("kexec blocked: permission denied (unsigned kernel or kexec_load_disabled)")
	case unix.EBUSY:
		return errors.New("kexec is busy (another kexec may be in progress)")
	default:
		return errors.Wrapf(err, "kexec load failed (errno %d), check dmesg", int(errno))
	}
}
