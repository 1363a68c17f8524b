package ir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilenameFor derives the canonical filename prefix for a module. Override
// files and debug dumps are matched against this prefix, so it must be
// stable across runs: it depends only on the module name.
func FilenameFor(m *Module) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-':
			return r
		default:
			return '_'
		}
	}, m.Name)
	return "module_" + sanitized
}

// DumpText writes the module's textual form into the configured dump
// directory under "<prefix>.<suffix>.txt". A module without a dump
// directory dumps nowhere; failures are returned to the caller, who
// typically logs and continues - dumping is a debugging aid, never a
// correctness dependency.
func DumpText(m *Module, suffix string) (string, error) {
	dir := m.Config.Debug.DumpDir
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.txt", FilenameFor(m), suffix))
	if err := os.WriteFile(path, []byte(Print(m)), 0o644); err != nil {
		return "", fmt.Errorf("write dump: %w", err)
	}
	return path, nil
}
