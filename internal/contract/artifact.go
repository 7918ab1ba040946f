package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract as emitted by Hardhat or Foundry.
type Artifact struct {
	ContractName string
	SourceName   string
	ABI          abi.ABI
	RawABI       json.RawMessage
	Bytecode     []byte
}

// LoadArtifact reads a Hardhat/Foundry artifact JSON file. Bytecode is
// optional so interface artifacts can still be used for calls.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read artifact file: %w", err)
	}
	art, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if art.ContractName == "" {
		art.ContractName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return art, nil
}

// ParseArtifact parses artifact bytes. A bare ABI array is accepted too.
func ParseArtifact(data []byte) (*Artifact, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("artifact is empty")
	}

	if data[0] == '[' {
		parsed, err := abi.JSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid ABI JSON: %w", err)
		}
		return &Artifact{ABI: parsed, RawABI: json.RawMessage(data)}, nil
	}

	var raw struct {
		ContractName string          `json:"contractName"`
		SourceName   string          `json:"sourceName"`
		ABI          json.RawMessage `json:"abi"`
		Bytecode     json.RawMessage `json:"bytecode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid artifact JSON: %w", err)
	}
	if len(raw.ABI) < 2 || raw.ABI[0] != '[' {
		return nil, fmt.Errorf("artifact has no \"abi\" array")
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing artifact ABI: %w", err)
	}

	art := &Artifact{
		ContractName: raw.ContractName,
		SourceName:   raw.SourceName,
		ABI:          parsed,
		RawABI:       raw.ABI,
	}
	if len(raw.Bytecode) > 0 {
		bcHex, err := extractBytecodeHex(raw.Bytecode)
		if err != nil {
			return nil, err
		}
		if bcHex != "" && bcHex != "0x" {
			if strings.Contains(bcHex, "__$") {
				return nil, fmt.Errorf("bytecode has unlinked library placeholders")
			}
			art.Bytecode, err = hexutil.Decode(bcHex)
			if err != nil {
				return nil, fmt.Errorf("invalid bytecode hex: %w", err)
			}
		}
	}
	return art, nil
}

// Deployable reports whether the artifact carries creation bytecode.
func (a *Artifact) Deployable() bool { return len(a.Bytecode) > 0 }

// FullyQualifiedName returns "<source>:<name>" as explorers expect.
func (a *Artifact) FullyQualifiedName() string {
	if a.SourceName == "" {
		return a.ContractName
	}
	return a.SourceName + ":" + a.ContractName
}

// extractBytecodeHex handles the two common artifact formats:
//   - Hardhat:  "bytecode": "0x608060..."
//   - Foundry:  "bytecode": {"object": "0x608060..."}
func extractBytecodeHex(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return ensure0x(strings.TrimSpace(str)), nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return ensure0x(strings.TrimSpace(obj.Object)), nil
	}
	return "", fmt.Errorf("bytecode field is neither a hex string nor a {\"object\":\"0x...\"} object")
}

func ensure0x(s string) string {
	if s == "" || strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

// BuildInfo is a Hardhat build-info file: the exact compiler input that
// produced a set of artifacts.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
	Output          struct {
		Contracts map[string]map[string]json.RawMessage `json:"contracts"`
	} `json:"output"`
}

// Contains reports whether the build produced sourceName:contractName.
func (b *BuildInfo) Contains(sourceName, contractName string) bool {
	_, ok := b.Output.Contracts[sourceName][contractName]
	return ok
}

// LoadBuildInfo reads one build-info file.
func LoadBuildInfo(path string) (*BuildInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading build info: %w", err)
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("parsing build info %s: %w", path, err)
	}
	if len(bi.Input) == 0 || bi.SolcLongVersion == "" {
		return nil, fmt.Errorf("%s is not a build-info file (missing input or solcLongVersion)", path)
	}
	return &bi, nil
}

// FindBuildInfo scans dir (usually artifacts/build-info) for the build that
// compiled sourceName:contractName.
func FindBuildInfo(dir, sourceName, contractName string) (*BuildInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		bi, err := LoadBuildInfo(m)
		if err != nil {
			continue
		}
		if bi.Contains(sourceName, contractName) {
			return bi, nil
		}
	}
	return nil, fmt.Errorf("no build info in %s compiles %s:%s", dir, sourceName, contractName)
}
