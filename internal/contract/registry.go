package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrDeploymentNotFound is returned when no deployment is recorded.
var ErrDeploymentNotFound = errors.New("deployment not found")

// Deployment records one contract deployed by w3raffle.
type Deployment struct {
	Name        string          `json:"name"`
	Network     string          `json:"network"`
	ChainID     int64           `json:"chainId"`
	Address     string          `json:"address"`
	TxHash      string          `json:"txHash"`
	BlockNumber uint64          `json:"blockNumber"`
	Deployer    string          `json:"deployer"`
	Args        []string        `json:"args,omitempty"`
	ABI         json.RawMessage `json:"abi,omitempty"`
	DeployedAt  time.Time       `json:"deployedAt"`
}

// Registry stores deployments in a JSON file keyed by name and network.
type Registry struct {
	path        string
	deployments map[string]*Deployment // key: "name@network"
}

// NewRegistry creates a Registry backed by path.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, deployments: make(map[string]*Deployment)}
}

// Load reads recorded deployments from disk. A missing file is empty.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries []Deployment
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing %s: %w", r.path, err)
	}
	for i := range entries {
		d := &entries[i]
		r.deployments[key(d.Name, d.Network)] = d
	}
	return nil
}

// Save writes all deployments to disk.
func (r *Registry) Save() error {
	data, err := json.MarshalIndent(r.All(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(r.path, data, 0o600)
}

// Add adds or replaces a deployment.
func (r *Registry) Add(d *Deployment) {
	r.deployments[key(d.Name, d.Network)] = d
}

// Get returns the deployment of name on network.
func (r *Registry) Get(name, network string) (*Deployment, error) {
	d, ok := r.deployments[key(name, network)]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrDeploymentNotFound, name, network)
	}
	return d, nil
}

// All returns every deployment sorted by network then name.
func (r *Registry) All() []*Deployment {
	out := make([]*Deployment, 0, len(r.deployments))
	for _, d := range r.deployments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Network != out[j].Network {
			return out[i].Network < out[j].Network
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Remove deletes a deployment.
func (r *Registry) Remove(name, network string) error {
	k := key(name, network)
	if _, ok := r.deployments[k]; !ok {
		return fmt.Errorf("%w: %s on %s", ErrDeploymentNotFound, name, network)
	}
	delete(r.deployments, k)
	return nil
}

func key(name, network string) string {
	return name + "@" + network
}
