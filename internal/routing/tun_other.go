//go:build !linux

package routing

import "github.com/songgao/water"

// configureWaterName is a no-op on platforms (darwin, etc.) where the
// kernel assigns the utun name and water has no override knob for it.
func configureWaterName(cfg *water.Config, name string) {}
