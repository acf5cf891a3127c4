package redev

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/scorec/redev-go/adios"
)

// defaultConfigFile is picked up from the working directory when no
// explicit path is configured, the way ADIOS reads adios2.xml when present.
const defaultConfigFile = "redev.toml"

// fileConfig holds the optional on-disk defaults for channel creation.
// Explicit arguments always win; file entries only fill gaps.
type fileConfig struct {
	Params map[string]string `toml:"params"`
}

// loadFileConfig reads path (or the default file when path is empty). A
// missing default file is not an error; a missing explicit file is.
func loadFileConfig(path string) (*fileConfig, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redev: read config %s: %w", path, err)
	}
	cfg := &fileConfig{}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("redev: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// mergeParams layers file defaults under the explicit parameter bag.
func (c *fileConfig) mergeParams(params adios.Params) adios.Params {
	if c == nil {
		return params
	}
	merged := adios.Params{}
	for k, v := range c.Params {
		if _, ok := params.Get(k); !ok {
			merged = append(merged, adios.Param{Key: k, Value: v})
		}
	}
	return append(merged, params...)
}
