package compiler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cinder-ml/cinder/internal/ir"
)

// maybeLoadIRFromFile checks the configured override file list for an
// operator-supplied replacement of the generated IR. Candidates match
// when their basename starts with the module's canonical filename prefix;
// the first match wins.
//
// No match is informational only: compilation proceeds with the generated
// IR. A matching file that fails to read or parse is process-fatal. An
// override is placed deliberately, and a broken one means the debugging
// setup is wrong; degrading silently to generated IR would defeat it.
func (c *Compiler) maybeLoadIRFromFile(config ir.ModuleConfig, m *ir.Module) *ir.Module {
	candidates := config.Debug.IROverrideFiles
	if len(candidates) == 0 {
		return nil
	}

	prefix := ir.FilenameFor(m)
	matched := ""
	for _, path := range candidates {
		if strings.HasPrefix(filepath.Base(path), prefix) {
			matched = path
			break
		}
	}
	if matched == "" {
		c.logger.Info("no IR override found", "module", m.Name, "prefix", prefix)
		return nil
	}

	text, err := os.ReadFile(matched)
	if err != nil {
		c.fatalf("could not read IR override %s for module %s: %v", matched, m.Name, err)
		return nil
	}
	override, err := ir.Parse(string(text))
	if err != nil {
		c.fatalf("could not parse IR override %s for module %s: %v", matched, m.Name, err)
		return nil
	}

	// The override rides on the original's config and target so debug
	// settings keep applying to it.
	override.Config = config.Clone()
	override.Target = m.Target
	c.logger.Info("using IR override", "module", m.Name, "file", matched)
	if _, err := ir.DumpText(override, "override"); err != nil {
		c.logger.Warn("could not dump IR override", "module", m.Name, "err", err)
	}
	return override
}
