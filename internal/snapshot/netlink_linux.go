//go:build linux

package snapshot

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/jsimonetti/rtnetlink/v2"
	"golang.org/x/sys/unix"
)

// neighSource is the slice of the rtnetlink connection the dumper needs.
type neighSource interface {
	List() ([]rtnetlink.NeighMessage, error)
	Close() error
}

type rtnetlinkSource struct {
	conn *rtnetlink.Conn
}

func (s rtnetlinkSource) List() ([]rtnetlink.NeighMessage, error) { return s.conn.Neigh.List() }
func (s rtnetlinkSource) Close() error                            { return s.conn.Close() }

// Mockable dial for testing.
var dialNeigh = func() (neighSource, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial rtnetlink")
	}
	return rtnetlinkSource{conn: conn}, nil
}

// ARPEntry is one learned neighbour.
type ARPEntry struct {
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	Interface string `json:"iface"`
}

// FDBEntry is one learned bridge forwarding entry.
type FDBEntry struct {
	MAC       string `json:"mac"`
	Interface string `json:"iface"`
}

// NetlinkDumper reads the kernel's neighbour tables directly over rtnetlink
// instead of shelling out. Used when the platform dump utility is absent.
type NetlinkDumper struct{}

func (NetlinkDumper) Dump(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := dialNeigh()
	if err != nil {
		return err
	}
	defer src.Close()

	neighs, err := src.List()
	if err != nil {
		return errors.Wrap(err, "list neighbours")
	}

	var arp []ARPEntry
	var fdb []FDBEntry
	for _, n := range neighs {
		if n.Attributes == nil {
			continue
		}
		switch n.Family {
		case unix.AF_INET, unix.AF_INET6:
			// Unresolved or dead entries are not worth restoring.
			if n.State&(unix.NUD_INCOMPLETE|unix.NUD_FAILED) != 0 {
				continue
			}
			if n.Attributes.Address == nil || n.Attributes.LLAddress == nil {
				continue
			}
			arp = append(arp, ARPEntry{
				IP:        n.Attributes.Address.String(),
				MAC:       n.Attributes.LLAddress.String(),
				Interface: ifaceName(int(n.Index)),
			})
		case unix.AF_BRIDGE:
			if n.Attributes.LLAddress == nil {
				continue
			}
			fdb = append(fdb, FDBEntry{
				MAC:       n.Attributes.LLAddress.String(),
				Interface: ifaceName(int(n.Index)),
			})
		}
	}

	if err := writeJSON(filepath.Join(dir, ARPFile), arp); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, FDBFile), fdb)
}

func ifaceName(index int) string {
	ifc, err := net.InterfaceByIndex(index)
	if err != nil {
		return ""
	}
	return ifc.Name
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
