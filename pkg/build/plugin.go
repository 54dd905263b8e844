package build

import "github.com/evanw/esbuild/pkg/api"

// CapabilityCSSExtract tags plugins that pull styles out of the module graph. They are the
// only parent plugins re-applied to prerender sub-builds by default.
const CapabilityCSSExtract = "css-extract"

// Plugin is an esbuild plugin tagged with the capabilities it provides
type Plugin struct {
	Name         string
	Capabilities []string
	Setup        func(api.PluginBuild)
}

// Has reports whether the plugin declares capability
func (p Plugin) Has(capability string) bool {
	for _, c := range p.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// FilterPlugins keeps plugins declaring at least one allowed capability, in order
func FilterPlugins(plugins []Plugin, allowed []string) []Plugin {
	var out []Plugin
	for _, p := range plugins {
		for _, a := range allowed {
			if p.Has(a) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
