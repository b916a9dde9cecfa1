// Package orchestrator runs the warm-reboot sequence: stage the next kernel,
// preserve forwarding state, tear the control plane down in an order peers
// never notice, and hand off. Strictly linear; each step completes or fails
// before the next begins.
package orchestrator

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/switchboot/fast-reboot/internal/bootimage"
	"github.com/switchboot/fast-reboot/internal/config"
	"github.com/switchboot/fast-reboot/internal/platform"
	"github.com/switchboot/fast-reboot/internal/snapshot"
)

// ErrRuntimeStop marks a failure to stop the container runtime engine.
// Fatal: a kernel transfer over a half-stopped engine risks corrupting its
// on-disk state.
var ErrRuntimeStop = errors.New("container runtime engine stop failure")

// Mechanism is the kernel-transfer facility (stage, clear, jump).
type Mechanism interface {
	EnsureUnstaged(ctx context.Context) error
	Unload(ctx context.Context) error
	Load(ctx context.Context, img bootimage.BootImage) error
	Execute(ctx context.Context) error
}

// Resolver produces the boot image to stage.
type Resolver interface {
	Resolve() (bootimage.BootImage, error)
}

// Capturer snapshots forwarding state into the destination container.
type Capturer interface {
	Capture(ctx context.Context) (*snapshot.Snapshot, error)
}

// ContainerRuntime is the slice of the container runtime the drain needs.
type ContainerRuntime interface {
	List(ctx context.Context) ([]string, error)
	Kill(ctx context.Context, name string) error
}

// ServiceManager stops named host services.
type ServiceManager interface {
	Stop(ctx context.Context, unit string) error
}

// ProcessKiller terminates named processes.
type ProcessKiller interface {
	Kill(ctx context.Context, name string) error
}

// StepResult is one entry of the run's invocation trace.
type StepResult struct {
	Name string
	Err  error
}

// Orchestrator owns a single reboot run. Not reusable.
type Orchestrator struct {
	Config     *config.Config
	Log        zerolog.Logger
	Mechanism  Mechanism
	Resolver   Resolver
	Capturer   Capturer
	Containers ContainerRuntime
	Services   ServiceManager
	Processes  ProcessKiller
	Profile    platform.Profile

	// DryRun stops after staging: the staged kernel is unloaded again and
	// no teardown happens.
	DryRun bool

	// Swappable for tests.
	SyncFunc  func()
	SleepFunc func(time.Duration)

	trace []StepResult
}

// Trace returns the recorded step results in execution order.
func (o *Orchestrator) Trace() []StepResult {
	return o.trace
}

func (o *Orchestrator) record(name string, err error) {
	o.trace = append(o.trace, StepResult{Name: name, Err: err})
	if err != nil {
		return
	}
	o.Log.Info().Str("step", name).Msg("done")
}

// fatal records the step and returns err unchanged for the caller to abort on.
func (o *Orchestrator) fatal(name string, err error) error {
	o.record(name, err)
	if err != nil {
		o.Log.Error().Err(err).Str("step", name).Msg("fatal step failed")
	}
	return err
}

// bestEffort records the step, logs failures, and always continues. Each
// invocation is bounded by the configured step timeout so a stuck daemon
// cannot block the reboot indefinitely.
func (o *Orchestrator) bestEffort(ctx context.Context, name string, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.Config.StepTimeout)
	defer cancel()

	err := fn(stepCtx)
	o.record(name, err)
	if err != nil {
		o.Log.Warn().Err(err).Str("step", name).Msg("continuing after best-effort failure")
	}
}

// Run executes the full sequence. On success it does not return: the final
// handoff replaces the running kernel. Any returned error is fatal and the
// system may be left partially torn down past the staging steps.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.SyncFunc == nil {
		o.SyncFunc = unix.Sync
	}
	if o.SleepFunc == nil {
		o.SleepFunc = time.Sleep
	}

	if err := o.fatal("privilege", EnsurePrivileged()); err != nil {
		return err
	}

	// At most one staged transfer at a time: clear leftovers from a prior
	// run before staging ours.
	if err := o.fatal("ensure-unstaged", o.Mechanism.EnsureUnstaged(ctx)); err != nil {
		return err
	}

	img, err := o.Resolver.Resolve()
	if err := o.fatal("resolve", err); err != nil {
		return err
	}
	o.Log.Info().
		Str("kernel", img.KernelPath).
		Str("initrd", img.InitrdPath).
		Str("append", img.AppendLine()).
		Msg("boot image resolved")

	// Point of preparation: reversible until execute, nothing torn down yet.
	if err := o.fatal("stage", o.Mechanism.Load(ctx, img)); err != nil {
		return err
	}

	if o.DryRun {
		o.Log.Info().Msg("dry run: unloading staged kernel and stopping here")
		return o.fatal("unload", o.Mechanism.Unload(ctx))
	}

	// Losing the snapshot degrades post-reboot convergence; it never makes
	// the reboot unsafe.
	o.bestEffort(ctx, "capture", func(c context.Context) error {
		_, err := o.Capturer.Capture(c)
		return err
	})

	o.runControlPlaneShutdown(ctx)
	o.drainContainers(ctx)

	if err := o.stopEngine(ctx); err != nil {
		return err
	}

	o.platformDrain(ctx)
	o.diskBarrier()

	if err := o.fatal("execute", o.Mechanism.Execute(ctx)); err != nil {
		// Past the point of no return: services are down and the engine is
		// stopped. Nothing automatic brings them back.
		return errors.Wrap(err, "kernel handoff failed, manual intervention required")
	}
	return nil
}

// stopEngine stops the container runtime engine with bounded retry before
// escalating to fatal.
func (o *Orchestrator) stopEngine(ctx context.Context) error {
	const attempts = 3

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			o.SleepFunc(time.Second)
		}
		if err = o.Services.Stop(ctx, o.Config.EngineUnit); err == nil {
			break
		}
		o.Log.Warn().Err(err).Int("attempt", i+1).Msg("engine stop failed, retrying")
	}
	if err != nil {
		err = errors.Mark(err, ErrRuntimeStop)
	}
	return o.fatal("stop-engine", err)
}

// diskBarrier flushes filesystem buffers twice with a settle delay between,
// so async write completion cannot race the kernel transfer.
func (o *Orchestrator) diskBarrier() {
	o.SyncFunc()
	o.record("sync", nil)
	o.Log.Info().Str("settle", units.HumanDuration(o.Config.SettleDelay)).Msg("waiting for writes to settle")
	o.SleepFunc(o.Config.SettleDelay)
	o.SyncFunc()
	o.record("sync", nil)
}
