package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
)

// ToolDef describes one command-line tool adapter.
type ToolDef struct {
	Name        string   `yaml:"name"`
	Binary      string   `yaml:"binary"`
	Profile     string   `yaml:"profile"`
	Args        []string `yaml:"args"`
	Category    string   `yaml:"category"`
	TargetTypes []string `yaml:"target_types"`
	TimeoutSec  int      `yaml:"timeout"`
	Trust       float64  `yaml:"trust"`
	Enabled     *bool    `yaml:"enabled"`
	Synopsis    string   `yaml:"synopsis"`
}

// File is the layout of the adapters YAML file.
type File struct {
	Tools []ToolDef `yaml:"tools"`
}

// IsEnabled defaults to true when unset.
func (d ToolDef) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// LoadFile reads tool definitions from path. A missing file yields no
// definitions and no error.
func LoadFile(path string) ([]ToolDef, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("tools: parse %s: %w", path, err)
	}
	for i, def := range file.Tools {
		if def.Name == "" {
			return nil, fmt.Errorf("tools: %s: entry %d missing 'name' field", path, i)
		}
	}
	return file.Tools, nil
}

// Merge overlays overrides onto defaults by name. Unset fields in an override
// keep the default's value; unknown names are appended.
func Merge(defaults, overrides []ToolDef) []ToolDef {
	out := make([]ToolDef, len(defaults))
	copy(out, defaults)
	index := map[string]int{}
	for i, d := range out {
		index[d.Name] = i
	}
	for _, o := range overrides {
		i, ok := index[o.Name]
		if !ok {
			index[o.Name] = len(out)
			out = append(out, o)
			continue
		}
		d := out[i]
		if o.Binary != "" {
			d.Binary = o.Binary
		}
		if o.Profile != "" {
			d.Profile = o.Profile
		}
		if len(o.Args) > 0 {
			d.Args = o.Args
		}
		if o.Category != "" {
			d.Category = o.Category
		}
		if len(o.TargetTypes) > 0 {
			d.TargetTypes = o.TargetTypes
		}
		if o.TimeoutSec > 0 {
			d.TimeoutSec = o.TimeoutSec
		}
		if o.Trust > 0 {
			d.Trust = o.Trust
		}
		if o.Enabled != nil {
			d.Enabled = o.Enabled
		}
		if o.Synopsis != "" {
			d.Synopsis = o.Synopsis
		}
		out[i] = d
	}
	return out
}

// Defaults are the built-in tool definitions.
func Defaults() []ToolDef {
	return []ToolDef{
		{
			Name: "amass", Binary: "amass", Profile: "amass",
			Args:     []string{"enum", "-passive", "-nocolor", "-d", "{{target}}"},
			Category: string(osint.CategorySubdomainEnum), TargetTypes: []string{"domain"},
			TimeoutSec: 300, Trust: 0.8,
			Synopsis: "OWASP Amass passive subdomain enumeration",
		},
		{
			Name: "bbot", Binary: "bbot", Profile: "bbot",
			Args:     []string{"-t", "{{target}}", "-f", "subdomain-enum", "-y", "--silent", "--json"},
			Category: string(osint.CategorySurfaceScan), TargetTypes: []string{"domain"},
			TimeoutSec: 600, Trust: 0.7,
			Synopsis: "bbot recursive attack surface scan",
		},
		{
			Name: "maigret", Binary: "maigret", Profile: "maigret",
			Args:     []string{"{{target}}", "--no-color", "--no-progressbar", "--timeout", "30", "--top-sites", "500"},
			Category: string(osint.CategoryAccountSearch), TargetTypes: []string{"username"},
			TimeoutSec: 300, Trust: 0.7,
			Synopsis: "Maigret account discovery across social sites",
		},
		{
			Name: "phoneinfoga", Binary: "phoneinfoga", Profile: "phoneinfoga",
			Args:     []string{"scan", "-n", "{{target}}"},
			Category: string(osint.CategoryPhoneLookup), TargetTypes: []string{"phone"},
			TimeoutSec: 120, Trust: 0.8,
			Synopsis: "PhoneInfoga carrier and location lookup",
		},
		{
			Name: "holehe", Binary: "holehe", Profile: "holehe",
			Args:     []string{"{{target}}", "--no-clear", "--no-color", "--only-used", "-T", "10"},
			Category: string(osint.CategoryEmailLookup), TargetTypes: []string{"email"},
			TimeoutSec: 240, Trust: 0.6,
			Synopsis: "holehe email registration checks",
		},
	}
}

// Capability converts the definition into a registry row.
func (d ToolDef) Capability(profile Profile) (agentcore.Capability, error) {
	category, err := osint.ParseCategory(d.Category)
	if err != nil {
		return agentcore.Capability{}, fmt.Errorf("tools: %s: %w", d.Name, err)
	}
	types := make([]osint.TargetType, 0, len(d.TargetTypes))
	for _, raw := range d.TargetTypes {
		tt, err := osint.ParseTargetType(raw)
		if err != nil {
			return agentcore.Capability{}, fmt.Errorf("tools: %s: %w", d.Name, err)
		}
		types = append(types, tt)
	}
	return agentcore.Capability{
		Category:    category,
		TargetTypes: types,
		MaxDuration: time.Duration(d.TimeoutSec) * time.Second,
		Trust:       d.Trust,
		Schema:      profile.Schema,
		Synopsis:    d.Synopsis,
	}, nil
}
