package features

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "WINBRIDGE_FEATURE_"

// LoadFromConfig applies the "features" map of the config file. Unknown names are returned, not applied.
func (fm *FlagManager) LoadFromConfig(flags map[string]bool) []string {
	var unknown []string
	for name, enabled := range flags {
		if err := fm.Set(strings.ToLower(name), enabled); err != nil {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// LoadFromEnvironment applies WINBRIDGE_FEATURE_<NAME>=true|false overrides
func (fm *FlagManager) LoadFromEnvironment() []string {
	return fm.loadFromEnviron(os.Environ())
}

func (fm *FlagManager) loadFromEnviron(environ []string) []string {
	var unknown []string
	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			unknown = append(unknown, key)
			continue
		}
		if err := fm.Set(strings.ToLower(strings.TrimPrefix(key, envPrefix)), enabled); err != nil {
			unknown = append(unknown, key)
		}
	}
	return unknown
}
