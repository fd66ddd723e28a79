package manifest

import "encoding/json"

// ManifestEndpointName is the well-known endpoint name an AgentCard uses to
// point at its widget manifest.
const ManifestEndpointName = "A2UI_MANIFEST"

// AgentCard is the off-chain document a registry token points at.
// Immutable once fetched.
type AgentCard struct {
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	Endpoints []Endpoint `json:"endpoints"`
}

type Endpoint struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Version  string `json:"version,omitempty"`
}

// ParseAgentCard parses and minimally validates an AgentCard document.
func ParseAgentCard(raw []byte) (AgentCard, error) {
	obj, ok := RawObject(raw)
	if !ok {
		return AgentCard{}, invalid("", "not a JSON object")
	}
	if _, ok := obj["endpoints"]; !ok {
		return AgentCard{}, invalid("endpoints", "missing")
	}
	var c AgentCard
	if err := json.Unmarshal(raw, &c); err != nil {
		return AgentCard{}, invalid("", "malformed document")
	}
	return c, nil
}

// ManifestEndpoint returns the endpoint carrying the manifest pointer, or
// nil when the card declares none.
func (c *AgentCard) ManifestEndpoint() *Endpoint {
	for i := range c.Endpoints {
		if c.Endpoints[i].Name == ManifestEndpointName {
			return &c.Endpoints[i]
		}
	}
	return nil
}
