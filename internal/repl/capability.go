package repl

import "gopkg.in/yaml.v2"

// CapabilitySet restricts which external-function names and proxy method
// names are callable at the host-call boundary (§4.9, §7 "capability
// denials"). A nil *CapabilitySet (the default, set_capabilities(None))
// means unrestricted, matching original_source's capability module
// treating an absent set as "allow everything" rather than "deny all".
type CapabilitySet struct {
	Functions map[string]bool `yaml:"functions"`
	Proxies   map[string]bool `yaml:"proxies"`
}

// AllowsFunction reports whether name may be called as an ExtFunction.
func (c *CapabilitySet) AllowsFunction(name string) bool {
	if c == nil {
		return true
	}
	return c.Functions[name]
}

// AllowsProxyMethod reports whether method may be invoked on a proxy
// object.
func (c *CapabilitySet) AllowsProxyMethod(method string) bool {
	if c == nil {
		return true
	}
	return c.Proxies[method]
}

// LoadCapabilitySetYAML parses a CapabilitySet from YAML, for hosts that
// keep allowlists in config files alongside their deployment manifests
// (e.g. a Kubernetes ConfigMap mounted next to the runner).
func LoadCapabilitySetYAML(data []byte) (*CapabilitySet, error) {
	var cs CapabilitySet
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}
