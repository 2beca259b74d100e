package trigger

import (
	"strings"

	"cinemate/internal/domain"
	"cinemate/internal/infra/config"
)

// builtinProfiles are the sensors whose drivers ship a trigger_mode parameter.
var builtinProfiles = map[string]domain.TriggerProfile{
	"imx477": {
		Model:     "imx477",
		ParamPath: "/sys/module/imx477/parameters/trigger_mode",
		Value:     func(mode int) int { return mode },
	},
	"imx296": {
		Model:     "imx296",
		ParamPath: "/sys/module/imx296/parameters/trigger_mode",
		Value: func(mode int) int {
			if mode == domain.TriggerExternal {
				return 1
			}
			return 0
		},
	},
}

// Profiles returns the built-in profiles merged with extra. Extra entries
// never replace a built-in model.
func Profiles(extra []config.TriggerProfileConfig) map[string]domain.TriggerProfile {
	out := make(map[string]domain.TriggerProfile, len(builtinProfiles)+len(extra))
	for k, v := range builtinProfiles {
		out[k] = v
	}
	for _, p := range extra {
		model := strings.ToLower(p.Model)
		if _, ok := out[model]; ok {
			continue
		}
		external := p.ExternalValue
		out[model] = domain.TriggerProfile{
			Model:     model,
			ParamPath: p.ParamPath,
			Value: func(mode int) int {
				if mode == domain.TriggerExternal {
					return external
				}
				return 0
			},
		}
	}
	return out
}
