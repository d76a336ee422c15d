// Package builtin holds the plugins that ship with the engine: an
// occurrence loader, field statistics and geohash transformers, the basic
// widgets, and a JSON file exporter. Pipeline configs can refer to these by
// name without any extra registration code.
package builtin

import (
	"github.com/ecodata/edk"
)

// Register adds every builtin plugin to reg.
func Register(reg *edk.Registry) error {
	plugins := []edk.Plugin{
		Occurrences(),
		FieldStats(),
		Geohash(),
		TopValues(),
		InfoPanel(),
		JSONFile(),
	}
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
