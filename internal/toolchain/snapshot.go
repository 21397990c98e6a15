package toolchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Snapshots let a step skip work when none of its inputs changed since the last
// successful run. A snapshot is a fingerprint of path, mtime and size of every
// input, stored as <task>.snapshot inside the step's output directory.
type Snapshots struct {
	Enabled bool
}

func snapshotFile(task, outputDir string) string {
	return filepath.Join(outputDir, task+".snapshot")
}

// UpToDate reports whether the stored fingerprint matches inputs and the output
// directory holds marker (or, with an empty marker, anything besides the snapshot).
func (s Snapshots) UpToDate(task string, inputs []string, outputDir, marker string) bool {
	if !s.Enabled {
		return false
	}
	saved, err := os.ReadFile(snapshotFile(task, outputDir))
	if err != nil {
		return false
	}
	if !hasOutput(outputDir, task, marker) {
		return false
	}
	current, err := fingerprint(inputs)
	if err != nil {
		return false
	}
	return current == string(saved)
}

// Record stores the fingerprint after a successful run.
func (s Snapshots) Record(task string, inputs []string, outputDir string) error {
	if !s.Enabled {
		return nil
	}
	sum, err := fingerprint(inputs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(snapshotFile(task, outputDir), []byte(sum), 0o600)
}

func hasOutput(outputDir, task, marker string) bool {
	if marker != "" {
		return exists(filepath.Join(outputDir, marker))
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() != task+".snapshot" {
			return true
		}
	}
	return false
}

func fingerprint(inputs []string) (string, error) {
	paths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", err
		}
		paths = append(paths, abs)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			// a vanished input must change the fingerprint
			fmt.Fprintf(h, "%s:missing\n", p)
			continue
		}
		fmt.Fprintf(h, "%s:%d:%d\n", p, st.ModTime().UnixNano(), st.Size())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
