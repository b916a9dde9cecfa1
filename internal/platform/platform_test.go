package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func writeVersionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sonic_version.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestResolve(t *testing.T) {
	path := writeVersionFile(t, "platform: x86_64-mlnx_msn2700-r0\nasic_type: mellanox\nbuild_version: '202405'\n")

	p, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.ASIC != "mellanox" {
		t.Errorf("ASIC = %q, want mellanox", p.ASIC)
	}
	if p.Platform != "x86_64-mlnx_msn2700-r0" {
		t.Errorf("Platform = %q", p.Platform)
	}
}

func TestResolveMissingFile(t *testing.T) {
	p, err := Resolve(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(p.DrainUnits()) != 0 {
		t.Errorf("empty profile should drain nothing, got %v", p.DrainUnits())
	}
}

func TestDrainUnitsGating(t *testing.T) {
	if units := (Profile{ASIC: "mellanox"}).DrainUnits(); len(units) != 1 || units[0] != "syncd" {
		t.Errorf("mellanox drain units = %v, want [syncd]", units)
	}
	if units := (Profile{ASIC: "broadcom"}).DrainUnits(); len(units) != 0 {
		t.Errorf("broadcom drain units = %v, want none", units)
	}
}
