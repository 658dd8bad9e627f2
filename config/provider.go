package config

import (
	"github.com/knadh/koanf/maps"
)

// mapProvider feeds koanf with flat map of dotted keys.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrLoad.New("map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
