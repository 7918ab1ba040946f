package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// Well-known account names, mirroring the deployer/player split used by the
// deploy and test flows.
const (
	AccountDeployer = "deployer"
	AccountPlayer   = "player"
)

// Errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// Account is a named signing key. The key itself lives in a Keystore.
type Account struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	KeyRef    string `json:"key_ref"`
	CreatedAt string `json:"created_at"`
}

// Store persists account metadata.
type Store interface {
	Load() ([]*Account, error)
	Save([]*Account) error
}

// Manager handles account CRUD and signer resolution.
type Manager struct {
	store    Store
	keys     Keystore
	accounts map[string]*Account
	loaded   bool
}

// NewManager creates a manager over the given metadata store and keystore.
func NewManager(store Store, keys Keystore) *Manager {
	return &Manager{store: store, keys: keys, accounts: make(map[string]*Account)}
}

// Import stores hexKey under name.
func (m *Manager) Import(name, hexKey string) (*Account, error) {
	if err := m.load(); err != nil {
		return nil, err
	}
	if _, ok := m.accounts[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, name)
	}
	addr, err := AddressFromKey(hexKey)
	if err != nil {
		return nil, err
	}
	ref, err := m.keys.Store(name, hexKey)
	if err != nil {
		return nil, fmt.Errorf("storing key: %w", err)
	}
	a := &Account{
		Name:      name,
		Address:   addr.Hex(),
		KeyRef:    ref,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.accounts[name] = a
	return a, m.persist()
}

// Get returns an account by name.
func (m *Manager) Get(name string) (*Account, error) {
	if err := m.load(); err != nil {
		return nil, err
	}
	a, ok := m.accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, name)
	}
	return a, nil
}

// Remove deletes an account and its key.
func (m *Manager) Remove(name string) error {
	a, err := m.Get(name)
	if err != nil {
		return err
	}
	if err := m.keys.Delete(a.KeyRef); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	delete(m.accounts, name)
	return m.persist()
}

// List returns all accounts sorted by name.
func (m *Manager) List() ([]*Account, error) {
	if err := m.load(); err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Signer loads the key for name and returns a Signer.
func (m *Manager) Signer(name string) (*Signer, error) {
	a, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	hexKey, err := m.keys.Retrieve(a.KeyRef)
	if err != nil {
		return nil, err
	}
	return NewSigner(hexKey)
}

func (m *Manager) load() error {
	if m.loaded {
		return nil
	}
	accounts, err := m.store.Load()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		m.accounts[a.Name] = a
	}
	m.loaded = true
	return nil
}

func (m *Manager) persist() error {
	accounts := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return m.store.Save(accounts)
}

// MemStore keeps account metadata in memory.
type MemStore struct {
	accounts []*Account
}

func (s *MemStore) Load() ([]*Account, error) { return s.accounts, nil }

func (s *MemStore) Save(accounts []*Account) error {
	s.accounts = accounts
	return nil
}

// JSONStore persists account metadata to a JSON file.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed account store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Load() ([]*Account, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var accounts []*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	return accounts, nil
}

func (s *JSONStore) Save(accounts []*Account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
