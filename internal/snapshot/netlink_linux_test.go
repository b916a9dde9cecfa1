//go:build linux

package snapshot

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsimonetti/rtnetlink/v2"
	"golang.org/x/sys/unix"
)

type fakeNeighSource struct {
	msgs []rtnetlink.NeighMessage
}

func (f fakeNeighSource) List() ([]rtnetlink.NeighMessage, error) { return f.msgs, nil }
func (f fakeNeighSource) Close() error                            { return nil }

func mac(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	hw, err := net.ParseMAC(s)
	if err != nil {
		t.Fatalf("parse mac %s: %v", s, err)
	}
	return hw
}

func TestNetlinkDumperSplitsFamilies(t *testing.T) {
	msgs := []rtnetlink.NeighMessage{
		{
			Family: unix.AF_INET,
			State:  unix.NUD_REACHABLE,
			Attributes: &rtnetlink.NeighAttributes{
				Address:   net.ParseIP("10.0.0.1"),
				LLAddress: mac(t, "00:11:22:33:44:55"),
			},
		},
		{
			// Unresolved entry, must be skipped.
			Family: unix.AF_INET,
			State:  unix.NUD_INCOMPLETE,
			Attributes: &rtnetlink.NeighAttributes{
				Address: net.ParseIP("10.0.0.9"),
			},
		},
		{
			Family: unix.AF_BRIDGE,
			State:  unix.NUD_NOARP,
			Attributes: &rtnetlink.NeighAttributes{
				LLAddress: mac(t, "66:77:88:99:aa:bb"),
			},
		},
	}

	orig := dialNeigh
	dialNeigh = func() (neighSource, error) { return fakeNeighSource{msgs: msgs}, nil }
	defer func() { dialNeigh = orig }()

	dir := t.TempDir()
	if err := (NetlinkDumper{}).Dump(context.Background(), dir); err != nil {
		t.Fatalf("Dump() error: %v", err)
	}

	var arp []ARPEntry
	readJSON(t, filepath.Join(dir, ARPFile), &arp)
	if len(arp) != 1 {
		t.Fatalf("arp entries = %d, want 1", len(arp))
	}
	if arp[0].IP != "10.0.0.1" || arp[0].MAC != "00:11:22:33:44:55" {
		t.Errorf("unexpected arp entry: %+v", arp[0])
	}

	var fdb []FDBEntry
	readJSON(t, filepath.Join(dir, FDBFile), &fdb)
	if len(fdb) != 1 {
		t.Fatalf("fdb entries = %d, want 1", len(fdb))
	}
	if fdb[0].MAC != "66:77:88:99:aa:bb" {
		t.Errorf("unexpected fdb entry: %+v", fdb[0])
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}
