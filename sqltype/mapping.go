package sqltype

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/syssam/dbx/dialect"
)

// Mapping is the per-dialect section of a type-mapping file.
//
//	sqlserver:
//	  types:
//	    GEOGRAPHY: bytes
//	  columns:
//	    orders.total: decimal
//	    is_deleted: boolean
//	  patterns:
//	    - match: (_flag|_indicator)$
//	      type: boolean
type Mapping struct {
	Types    map[string]Type `yaml:"types"`
	Columns  map[string]Type `yaml:"columns"`
	Patterns []struct {
		Match string `yaml:"match"`
		Type  Type   `yaml:"type"`
	} `yaml:"patterns"`
}

// LoadMapping reads a YAML type-mapping document and applies it to a clone
// of base. The base registry is never modified.
func LoadMapping(r io.Reader, base *Registry) (*Registry, error) {
	var doc map[string]Mapping
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("sqltype: decode mapping: %w", err)
	}
	if base == nil {
		base = Default
	}
	reg := base.Clone()
	for name, m := range doc {
		id := dialect.Normalize(name)
		if id == dialect.Unknown {
			return nil, fmt.Errorf("sqltype: mapping: unknown dialect %q", name)
		}
		for code, t := range m.Types {
			reg.Register(id, code, t)
		}
		for key, t := range m.Columns {
			reg.RegisterColumn(id, key, t)
		}
		for _, p := range m.Patterns {
			re, err := regexp.Compile(p.Match)
			if err != nil {
				return nil, fmt.Errorf("sqltype: mapping: %s pattern %q: %w", name, p.Match, err)
			}
			reg.RegisterPattern(id, Pattern{Match: re, Type: p.Type})
		}
	}
	return reg, nil
}

// LoadMappingFile reads a type-mapping file. See LoadMapping.
func LoadMappingFile(path string, base *Registry) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sqltype: open mapping: %w", err)
	}
	defer f.Close()
	return LoadMapping(f, base)
}
