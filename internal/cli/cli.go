//go:build linux

// Package cli wires the orchestrator together: config, logging, the
// single-run lock, and the one command this tool exposes.
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/switchboot/fast-reboot/internal/bootimage"
	"github.com/switchboot/fast-reboot/internal/config"
	"github.com/switchboot/fast-reboot/internal/initsystem"
	"github.com/switchboot/fast-reboot/internal/kexec"
	"github.com/switchboot/fast-reboot/internal/orchestrator"
	"github.com/switchboot/fast-reboot/internal/platform"
	"github.com/switchboot/fast-reboot/internal/runtime"
	"github.com/switchboot/fast-reboot/internal/snapshot"
)

var (
	cfgFile string
	yesFlag bool
	dryRun  bool
)

var rootCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fast-reboot",
		Short: "Warm-reboot the switch by re-executing a new kernel from the running one",
		Long: "fast-reboot stages the next kernel image, preserves learned forwarding\n" +
			"state (ARP/FDB), tears the control plane down in an order peers never\n" +
			"notice, and jumps to the new kernel without going through firmware.",
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file path (default /etc/fast-reboot.yaml)")
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "automatic yes to the confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "stage and unload the kernel, skip all teardown")
	return cmd
}()

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	conf := config.Default()

	v := viper.New()
	v.SetEnvPrefix("FAST_REBOOT")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("fast-reboot")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc")
	}
	_ = v.ReadInConfig() // optional; missing file is OK

	if err := v.Unmarshal(conf); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return conf, nil
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}

func run(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()

	// Exactly one orchestrator at a time: the staged-image slot has a
	// single owner.
	lock := flock.New(conf.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "acquire %s", conf.LockPath)
	}
	if !locked {
		return errors.Newf("another fast-reboot is already in progress (%s held)", conf.LockPath)
	}
	defer lock.Unlock() //nolint:errcheck

	if !confirm(conf) {
		log.Info().Msg("aborted by operator")
		return nil
	}

	docker, err := runtime.NewDocker()
	if err != nil {
		return err
	}
	defer docker.Close()

	profile, err := platform.Resolve(conf.PlatformConfigPath)
	if err != nil {
		// Gates only best-effort steps; an unreadable profile drains nothing.
		log.Warn().Err(err).Msg("platform profile unavailable")
	}

	orch := &orchestrator.Orchestrator{
		Config:    conf,
		Log:       log,
		Mechanism: kexec.New(),
		Resolver: bootimage.Resolver{
			KernelPath:  conf.KernelPath,
			InitrdPath:  conf.InitrdPath,
			CmdlinePath: conf.CmdlinePath,
		},
		Capturer: &snapshot.Capturer{
			Dir:       conf.SnapshotDir,
			Container: conf.SnapshotContainer,
			Dumper:    selectDumper(conf, log),
			FS:        docker,
			Log:       log,
		},
		Containers: docker,
		Services:   initsystem.Systemd{},
		Processes:  initsystem.Pkill{},
		Profile:    profile,
		DryRun:     dryRun,
	}

	// On success Run does not return: the new kernel takes over.
	return orch.Run(cmd.Context())
}

// selectDumper prefers the platform dump utility and falls back to reading
// the kernel's neighbour tables directly over netlink.
func selectDumper(conf *config.Config, log zerolog.Logger) snapshot.Dumper {
	exec := snapshot.ExecDumper{Path: conf.DumperPath}
	if exec.Available() {
		return exec
	}
	log.Info().Str("path", conf.DumperPath).Msg("dump utility not found, using netlink dumper")
	return snapshot.NetlinkDumper{}
}

// confirm shows the boot summary and asks before any state changes.
func confirm(conf *config.Config) bool {
	fmt.Printf("\nFast reboot summary:\n")
	fmt.Printf("  Kernel:   %s\n", conf.KernelPath)
	fmt.Printf("  Initrd:   %s\n", conf.InitrdPath)
	fmt.Printf("  Snapshot: %s -> %s\n\n", conf.SnapshotDir, conf.SnapshotContainer)

	if yesFlag {
		fmt.Println("Continue with reboot? [yes]: yes")
		return true
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Continue with reboot? [no]: ")
		in, _ := reader.ReadString('\n')
		switch strings.TrimSpace(strings.ToLower(in)) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		}
		fmt.Println("Please answer 'yes' or 'no'.")
	}
}
