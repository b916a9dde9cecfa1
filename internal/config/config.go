// Package config holds the orchestrator's settings: well-known paths, the
// snapshot destination, and the few knobs the reboot sequence exposes.
package config

import "time"

type Config struct {
	// Boot image locations. The host platform is responsible for placing
	// the next kernel and initrd here.
	KernelPath  string `mapstructure:"kernel_path"`
	InitrdPath  string `mapstructure:"initrd_path"`
	CmdlinePath string `mapstructure:"cmdline_path"`

	// Forwarding-state snapshot.
	SnapshotDir       string `mapstructure:"snapshot_dir"`
	SnapshotContainer string `mapstructure:"snapshot_container"`
	DumperPath        string `mapstructure:"dumper_path"`

	// Platform profile source and the container runtime engine unit.
	PlatformConfigPath string `mapstructure:"platform_config_path"`
	EngineUnit         string `mapstructure:"engine_unit"`

	// Containers left alone by the drain step. The snapshot consumer's
	// state store must outlive the drain until the engine itself stops.
	DrainExclude []string `mapstructure:"drain_exclude"`

	// LockPath guards against concurrent orchestrator runs.
	LockPath string `mapstructure:"lock_path"`

	// SettleDelay sits between the two sync passes of the disk barrier.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// StepTimeout bounds each best-effort teardown step.
	StepTimeout time.Duration `mapstructure:"step_timeout"`
}

func Default() *Config {
	return &Config{
		KernelPath:         "/host/image/boot/vmlinuz",
		InitrdPath:         "/host/image/boot/initrd.img",
		CmdlinePath:        "/proc/cmdline",
		SnapshotDir:        "/host/fast-reboot",
		SnapshotContainer:  "swss",
		DumperPath:         "/usr/bin/fast-reboot-dump.py",
		PlatformConfigPath: "/etc/sonic/sonic_version.yml",
		EngineUnit:         "docker",
		DrainExclude:       []string{"database"},
		LockPath:           "/run/fast-reboot.lock",
		SettleDelay:        3 * time.Second,
		StepTimeout:        10 * time.Second,
	}
}
