package connector

import (
	"sync"
	"time"

	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
)

// Status is the lifecycle state of an integration instance
type Status string

const (
	StatusConfiguring Status = "configuring"
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusError       Status = "error"
	StatusTesting     Status = "testing"
)

// Metrics holds per-integration request statistics
type Metrics struct {
	TotalRequests  int64         `json:"totalRequests"`
	SuccessCount   int64         `json:"successCount"`
	FailureCount   int64         `json:"failureCount"`
	AverageLatency time.Duration `json:"averageLatency"`
	LastUsed       time.Time     `json:"lastUsed,omitempty"`
}

// Integration binds a catalog service to connection-specific configuration
type Integration struct {
	ID        string                 `json:"id"`
	ServiceID string                 `json:"serviceId"`
	Name      string                 `json:"name,omitempty"`
	Status    Status                 `json:"status"`
	Config    map[string]interface{} `json:"config,omitempty"`
	Created   time.Time              `json:"created"`
	Metrics   Metrics                `json:"metrics"`
}

// Connections manages live integration instances
type Connections struct {
	mu      sync.RWMutex
	catalog *Catalog
	byID    map[string]*Integration
}

// NewConnections creates an instance manager bound to catalog
func NewConnections(catalog *Catalog) *Connections {
	return &Connections{
		catalog: catalog,
		byID:    make(map[string]*Integration),
	}
}

// Connect creates an integration instance for a cataloged service. New
// instances start in the configuring state.
func (c *Connections) Connect(serviceID, name string, config map[string]interface{}) (*Integration, error) {
	if _, err := c.catalog.Get(serviceID); err != nil {
		return nil, err
	}

	integration := &Integration{
		ID:        utils.NewID(),
		ServiceID: serviceID,
		Name:      name,
		Status:    StatusConfiguring,
		Config:    config,
		Created:   time.Now(),
	}

	c.mu.Lock()
	c.byID[integration.ID] = integration
	c.mu.Unlock()

	return snapshot(integration), nil
}

// SetStatus transitions an integration instance
func (c *Connections) SetStatus(connectionID string, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	integration, ok := c.byID[connectionID]
	if !ok {
		return errors.NotFoundError("integration").WithContext("connection_id", connectionID)
	}
	integration.Status = status
	return nil
}

// Get returns a snapshot of one integration instance
func (c *Connections) Get(connectionID string) (*Integration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	integration, ok := c.byID[connectionID]
	if !ok {
		return nil, errors.NotFoundError("integration").WithContext("connection_id", connectionID)
	}
	return snapshot(integration), nil
}

// List returns snapshots of all integration instances
func (c *Connections) List() []*Integration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Integration, 0, len(c.byID))
	for _, integration := range c.byID {
		out = append(out, snapshot(integration))
	}
	return out
}

// Disconnect removes an integration instance
func (c *Connections) Disconnect(connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byID[connectionID]; !ok {
		return errors.NotFoundError("integration").WithContext("connection_id", connectionID)
	}
	delete(c.byID, connectionID)
	return nil
}

// recordRequest folds one request outcome into the instance metrics
func (c *Connections) recordRequest(connectionID string, success bool, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	integration, ok := c.byID[connectionID]
	if !ok {
		return
	}

	m := &integration.Metrics
	m.TotalRequests++
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
	}
	if m.TotalRequests == 1 {
		m.AverageLatency = latency
	} else {
		m.AverageLatency = (m.AverageLatency*time.Duration(m.TotalRequests-1) + latency) / time.Duration(m.TotalRequests)
	}
	m.LastUsed = time.Now()
}

func snapshot(integration *Integration) *Integration {
	clone := *integration
	return &clone
}
