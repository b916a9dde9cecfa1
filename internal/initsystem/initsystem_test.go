package initsystem

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

type call struct {
	name string
	args []string
}

func record(t *testing.T, calls *[]call, err error) func() {
	t.Helper()
	orig := runCommand
	runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		return nil, err
	}
	return func() { runCommand = orig }
}

func TestSystemdStop(t *testing.T) {
	var calls []call
	defer record(t, &calls, nil)()

	if err := (Systemd{}).Stop(context.Background(), "teamd"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if len(calls) != 1 || calls[0].name != "systemctl" {
		t.Fatalf("unexpected calls: %v", calls)
	}
	if got := strings.Join(calls[0].args, " "); got != "stop teamd" {
		t.Errorf("args = %q, want %q", got, "stop teamd")
	}
}

func TestSystemdStopFailure(t *testing.T) {
	var calls []call
	defer record(t, &calls, errors.New("unit not loaded"))()

	if err := (Systemd{}).Stop(context.Background(), "teamd"); err == nil {
		t.Error("Stop() expected error")
	}
}

func TestPkillSendsSIGKILLByExactName(t *testing.T) {
	var calls []call
	defer record(t, &calls, nil)()

	if err := (Pkill{}).Kill(context.Background(), "bgpd"); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	if got := strings.Join(calls[0].args, " "); got != "-9 -x bgpd" {
		t.Errorf("args = %q, want %q", got, "-9 -x bgpd")
	}
}

func TestPkillNoMatchIsSuccess(t *testing.T) {
	// pkill exits 1 when no process matched; a daemon that is already dead
	// must not count as a teardown failure.
	var calls []call
	exitOne := exec.Command("false").Run()
	defer record(t, &calls, exitOne)()

	if err := (Pkill{}).Kill(context.Background(), "zebra"); err != nil {
		t.Errorf("Kill() with no match: %v", err)
	}
}
