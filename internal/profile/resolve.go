package profile

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/meeple/internal/config"
)

const DefaultName = config.DefaultProfile

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

// Names may not start with '-' so they can't be mistaken for CLI flags.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]{0,63}$`)

// ValidateName checks that name conforms to profile naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: lowercase letters, digits, '_' or '-', at most 64, not starting with '-'", name)
	}
	return nil
}
