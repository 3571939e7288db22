package smart

import (
	"slices"
)

// Endpoint discovery sources.
const (
	SourceWellKnown           = "smart-configuration"
	SourceCapabilityStatement = "capability-statement"
)

// Endpoints are the OAuth URLs advertised by a FHIR server.
type Endpoints struct {
	Issuer                string
	AuthorizationEndpoint string
	TokenEndpoint         string
	JWKSURI               string
	ScopesSupported       []string
	Capabilities          []string
	Source                string
}

// Supports reports whether the host advertised the SMART capability, e.g. "launch-ehr".
// Hosts that list no capabilities are assumed to support everything.
func (e Endpoints) Supports(capability string) bool {
	return len(e.Capabilities) == 0 || slices.Contains(e.Capabilities, capability)
}

// smartConfiguration is the .well-known/smart-configuration document.
type smartConfiguration struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	JWKSURI               string   `json:"jwks_uri"`
	ScopesSupported       []string `json:"scopes_supported"`
	Capabilities          []string `json:"capabilities"`
}

// capabilityStatement keeps only the parts of a CapabilityStatement that carry OAuth URLs.
type capabilityStatement struct {
	ResourceType string `json:"resourceType"`
	Rest         []struct {
		Security struct {
			Extension []extension `json:"extension"`
		} `json:"security"`
	} `json:"rest"`
}

type extension struct {
	URL       string      `json:"url"`
	ValueURI  string      `json:"valueUri"`
	ValueCode string      `json:"valueCode"`
	Extension []extension `json:"extension"`
}

const (
	oauthURIsExtension    = "http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris"
	capabilitiesExtension = "http://fhir-registry.smarthealthit.org/StructureDefinition/capabilities"
)

func (c capabilityStatement) endpoints() Endpoints {
	var e Endpoints
	for _, rest := range c.Rest {
		for _, ext := range rest.Security.Extension {
			switch ext.URL {
			case oauthURIsExtension:
				for _, sub := range ext.Extension {
					switch sub.URL {
					case "authorize":
						e.AuthorizationEndpoint = sub.ValueURI
					case "token":
						e.TokenEndpoint = sub.ValueURI
					}
				}
			case capabilitiesExtension:
				if ext.ValueCode != "" {
					e.Capabilities = append(e.Capabilities, ext.ValueCode)
				}
			}
		}
	}
	return e
}
