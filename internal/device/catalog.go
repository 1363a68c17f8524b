package device

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed catalog.cue
var builtinCatalogCUE []byte

// Catalog maps device names to capability descriptors.
//
// The built-in catalog is embedded CUE (catalog.cue); site-specific entries
// can be merged in from extra files. CUE validates every entry against the
// #Device schema, so a malformed catalog fails at load time instead of
// surfacing as a miscompiled module later.
type Catalog struct {
	devices map[string]Capability
}

// LoadCatalog parses the built-in catalog plus any extra CUE files, in
// order. Later files unify with (and may extend) earlier ones.
func LoadCatalog(extraFiles ...string) (*Catalog, error) {
	ctx := cuecontext.New()

	value := ctx.CompileBytes(builtinCatalogCUE)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("built-in catalog: %w", err)
	}

	for _, path := range extraFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog file %s: %w", path, err)
		}
		extra := ctx.CompileBytes(data)
		if err := extra.Err(); err != nil {
			return nil, fmt.Errorf("catalog file %s: %w", path, err)
		}
		value = value.Unify(extra)
		if err := value.Err(); err != nil {
			return nil, fmt.Errorf("merging catalog file %s: %w", path, err)
		}
	}

	return parseCatalog(value)
}

// parseCatalog extracts the devices struct from a validated CUE value.
func parseCatalog(value cue.Value) (*Catalog, error) {
	devicesVal := value.LookupPath(cue.ParsePath("devices"))
	if !devicesVal.Exists() {
		return nil, fmt.Errorf("catalog has no devices struct")
	}

	iter, err := devicesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	cat := &Catalog{devices: make(map[string]Capability)}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		capability, err := parseDevice(name, iter.Value())
		if err != nil {
			return nil, err
		}
		cat.devices[name] = capability
	}

	if len(cat.devices) == 0 {
		return nil, fmt.Errorf("catalog defines no devices")
	}
	return cat, nil
}

func parseDevice(name string, v cue.Value) (Capability, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Capability{}, fmt.Errorf("device %s: %w", name, err)
	}

	gen, err := v.LookupPath(cue.ParsePath("generation")).Int64()
	if err != nil {
		return Capability{}, fmt.Errorf("device %s: generation: %w", name, err)
	}

	boolField := func(field string) (bool, error) {
		fv := v.LookupPath(cue.ParsePath(field))
		if !fv.Exists() {
			return false, nil
		}
		return fv.Bool()
	}

	capability := Capability{Name: name, Generation: int(gen)}
	if capability.LowPrecisionConv, err = boolField("low_precision_conv"); err != nil {
		return Capability{}, fmt.Errorf("device %s: low_precision_conv: %w", name, err)
	}
	if capability.FusedConv, err = boolField("fused_conv"); err != nil {
		return Capability{}, fmt.Errorf("device %s: fused_conv: %w", name, err)
	}
	if capability.FusedAttention, err = boolField("fused_attention"); err != nil {
		return Capability{}, fmt.Errorf("device %s: fused_attention: %w", name, err)
	}
	return capability, nil
}

// Lookup returns the capability descriptor for a device name.
func (c *Catalog) Lookup(name string) (Capability, bool) {
	capability, ok := c.devices[name]
	return capability, ok
}

// Names returns all device names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.devices))
	for name := range c.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
