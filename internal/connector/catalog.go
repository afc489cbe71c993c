// Package connector holds the integration catalog (third-party service
// descriptors), live integration instances bound to stored connection config,
// and the invoker that executes REST/GraphQL requests against them with
// caching, rate limiting, retry, and circuit breaking.
package connector

import (
	"sort"
	"sync"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
)

// Descriptor describes an external service available for integration
type Descriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	AuthTypes    []string `json:"authTypes"`
	Capabilities []string `json:"capabilities"`
	// ConfigSchema maps config field names to a short type hint
	ConfigSchema map[string]string `json:"configSchema,omitempty"`
	BaseURL      string            `json:"baseUrl,omitempty"`
}

// Catalog is a registry of service descriptors
type Catalog struct {
	mu       sync.RWMutex
	services map[string]Descriptor
}

// NewCatalog returns a catalog pre-loaded with the built-in services
func NewCatalog() *Catalog {
	c := &Catalog{services: make(map[string]Descriptor)}
	for _, d := range builtinServices() {
		c.services[d.ID] = d
	}
	return c
}

// Register adds or replaces a service descriptor
func (c *Catalog) Register(descriptor Descriptor) error {
	if descriptor.ID == "" {
		return errors.ValidationError("service descriptor requires an id")
	}
	c.mu.Lock()
	c.services[descriptor.ID] = descriptor
	c.mu.Unlock()
	return nil
}

// Get looks up one service descriptor
func (c *Catalog) Get(serviceID string) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.services[serviceID]
	if !ok {
		return Descriptor{}, errors.NotFoundError("service").WithContext("service_id", serviceID)
	}
	return d, nil
}

// List returns all descriptors ordered by id
func (c *Catalog) List() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(c.services))
	for _, d := range c.services {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func builtinServices() []Descriptor {
	return []Descriptor{
		{
			ID:           "slack",
			Name:         "Slack",
			Category:     "communication",
			AuthTypes:    []string{"oauth2", "webhook"},
			Capabilities: []string{"send-message", "create-channel", "upload-file"},
			ConfigSchema: map[string]string{
				"webhookUrl":     "url",
				"defaultChannel": "string",
			},
			BaseURL: "https://slack.com/api",
		},
		{
			ID:           "salesforce",
			Name:         "Salesforce",
			Category:     "crm",
			AuthTypes:    []string{"oauth2"},
			Capabilities: []string{"create-lead", "update-contact", "query"},
			ConfigSchema: map[string]string{
				"instanceUrl": "url",
				"apiVersion":  "string",
			},
		},
		{
			ID:           "hubspot",
			Name:         "HubSpot",
			Category:     "crm",
			AuthTypes:    []string{"oauth2", "api-key"},
			Capabilities: []string{"create-contact", "update-deal", "track-event"},
			ConfigSchema: map[string]string{
				"portalId": "string",
			},
			BaseURL: "https://api.hubapi.com",
		},
		{
			ID:           "google-workspace",
			Name:         "Google Workspace",
			Category:     "productivity",
			AuthTypes:    []string{"oauth2", "service-account"},
			Capabilities: []string{"append-sheet-row", "create-doc", "send-mail"},
			ConfigSchema: map[string]string{
				"spreadsheetId": "string",
				"sheetName":     "string",
			},
			BaseURL: "https://www.googleapis.com",
		},
	}
}
