// Package platform resolves the host's platform/ASIC identity, used only to
// gate the platform-specific drain steps.
package platform

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Profile identifies the hardware platform. Resolved once per run.
type Profile struct {
	Platform string
	ASIC     string
}

// DrainUnits returns the platform-specific services that must be stopped
// before the kernel handoff. Empty for platforms without such services.
func (p Profile) DrainUnits() []string {
	// Mellanox ASICs run the SDK inside syncd against shared memory that an
	// abrupt kernel transfer would leave inconsistent.
	if p.ASIC == "mellanox" {
		return []string{"syncd"}
	}
	return nil
}

// Resolve reads the platform identity from a version file (sonic_version.yml
// shape: platform and asic_type keys). A missing file yields an empty
// profile, which drains nothing.
func Resolve(path string) (Profile, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Profile{}, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Profile{}, errors.Wrapf(err, "read platform config %s", path)
	}

	return Profile{
		Platform: v.GetString("platform"),
		ASIC:     v.GetString("asic_type"),
	}, nil
}
