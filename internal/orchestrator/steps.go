package orchestrator

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Action says how a shutdown step terminates its target.
type Action int

const (
	// ActionKillProcess sends SIGKILL to a named process.
	ActionKillProcess Action = iota
	// ActionStopService stops a named service through the init system.
	ActionStopService
)

// ShutdownStep is one entry of an ordered teardown sequence.
type ShutdownStep struct {
	Target string
	Action Action
}

// ControlPlaneSequence is the fixed control-plane teardown order. The order
// is a hard invariant: the watchdog dies first or it restarts the daemons
// killed after it; routing daemons die before the link-layer services so no
// down-link notification reaches peers and triggers failover on neighbors.
var ControlPlaneSequence = []ShutdownStep{
	{Target: "watchquagga", Action: ActionKillProcess},
	{Target: "zebra", Action: ActionKillProcess},
	{Target: "bgpd", Action: ActionKillProcess},
	{Target: "lldp", Action: ActionStopService},
	{Target: "teamd", Action: ActionStopService},
}

func (o *Orchestrator) runShutdownStep(ctx context.Context, step ShutdownStep) {
	o.bestEffort(ctx, "shutdown:"+step.Target, func(c context.Context) error {
		switch step.Action {
		case ActionKillProcess:
			return o.Processes.Kill(c, step.Target)
		case ActionStopService:
			return o.Services.Stop(c, step.Target)
		default:
			return errors.Newf("unknown action %d for %s", step.Action, step.Target)
		}
	})
}

func (o *Orchestrator) runControlPlaneShutdown(ctx context.Context) {
	for _, step := range ControlPlaneSequence {
		o.runShutdownStep(ctx, step)
	}
}

// drainContainers kills every running container not excluded, freeing
// resources and leaving the runtime clean before the engine itself stops.
func (o *Orchestrator) drainContainers(ctx context.Context) {
	o.bestEffort(ctx, "drain-containers", func(c context.Context) error {
		names, err := o.Containers.List(c)
		if err != nil {
			return err
		}

		exclude := make(map[string]bool, len(o.Config.DrainExclude))
		for _, n := range o.Config.DrainExclude {
			exclude[n] = true
		}

		for _, name := range names {
			if exclude[name] {
				continue
			}
			if err := o.Containers.Kill(c, name); err != nil {
				o.Log.Warn().Err(err).Str("container", name).Msg("container kill failed")
			}
		}
		return nil
	})
}

// platformDrain stops platform-specific ASIC services, gated by the profile.
// No-op for platforms without such services.
func (o *Orchestrator) platformDrain(ctx context.Context) {
	for _, unit := range o.Profile.DrainUnits() {
		o.bestEffort(ctx, "platform:"+unit, func(c context.Context) error {
			return o.Services.Stop(c, unit)
		})
	}
}
