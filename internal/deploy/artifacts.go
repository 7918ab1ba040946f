package deploy

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Mohsinsiddi/w3raffle/internal/contract"
)

// ArtifactLoader resolves a contract name to its compiled artifact.
type ArtifactLoader func(name string) (*contract.Artifact, error)

var errFound = errors.New("found")

// HardhatArtifacts finds <name>.json anywhere under a Hardhat artifacts
// directory, skipping build-info and debug files.
func HardhatArtifacts(root string) ArtifactLoader {
	return func(name string) (*contract.Artifact, error) {
		var match string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && d.Name() == "build-info" {
				return filepath.SkipDir
			}
			if !d.IsDir() && d.Name() == name+".json" && !strings.HasSuffix(d.Name(), ".dbg.json") {
				match = path
				return errFound
			}
			return nil
		})
		if err != nil && !errors.Is(err, errFound) {
			return nil, fmt.Errorf("searching %s: %w", root, err)
		}
		if match == "" {
			return nil, fmt.Errorf("artifact %s.json not found under %s (run `npx hardhat compile`)", name, root)
		}
		return contract.LoadArtifact(match)
	}
}

// BuildInfoDir is where Hardhat writes compiler inputs for an artifacts root.
func BuildInfoDir(root string) string {
	return filepath.Join(root, "build-info")
}
