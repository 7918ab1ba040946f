// Package frontend keeps the web app's contract constants in sync with
// deployments: a per-chain address list and the contract ABI.
package frontend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Addresses maps a chain id (as a decimal string) to deployed addresses.
type Addresses map[string][]string

// ReadAddresses loads the address file. A missing or empty file is an empty map.
func ReadAddresses(path string) (Addresses, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Addresses{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Addresses{}, nil
	}
	addrs := Addresses{}
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return addrs, nil
}

// UpdateAddresses records address for chainID, appending it only when the
// chain's list does not already contain it. It reports whether the file
// changed.
func UpdateAddresses(path string, chainID int64, address common.Address) (bool, error) {
	addrs, err := ReadAddresses(path)
	if err != nil {
		return false, err
	}
	key := strconv.FormatInt(chainID, 10)
	hex := address.Hex()
	if slices.ContainsFunc(addrs[key], func(a string) bool { return strings.EqualFold(a, hex) }) {
		return false, nil
	}
	addrs[key] = append(addrs[key], hex)
	if err := writeJSON(path, addrs); err != nil {
		return false, err
	}
	return true, nil
}

// Latest returns the most recently recorded address for chainID.
func (a Addresses) Latest(chainID int64) (common.Address, bool) {
	list := a[strconv.FormatInt(chainID, 10)]
	if len(list) == 0 {
		return common.Address{}, false
	}
	return common.HexToAddress(list[len(list)-1]), true
}

// WriteABI writes the contract ABI JSON to path.
func WriteABI(path string, abiJSON json.RawMessage) error {
	if !json.Valid(abiJSON) {
		return fmt.Errorf("ABI is not valid JSON")
	}
	var v interface{}
	if err := json.Unmarshal(abiJSON, &v); err != nil {
		return err
	}
	return writeJSON(path, v)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
