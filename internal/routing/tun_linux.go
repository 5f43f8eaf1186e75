//go:build linux

package routing

import "github.com/songgao/water"

// configureWaterName requests the given interface name on Linux, where
// water honors PlatformSpecificParams.Name.
func configureWaterName(cfg *water.Config, name string) {
	if name == "" {
		return
	}
	cfg.PlatformSpecificParams = water.PlatformSpecificParams{Name: name}
}
