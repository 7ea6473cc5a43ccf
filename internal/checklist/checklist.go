// Package checklist holds the official document checklists per filing
// process and verifies submission bundles against them.
package checklist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/filingcheck/internal/rules"
	"github.com/dshills/filingcheck/internal/schema"
)

// DefaultProcess is used when a process cannot be inferred.
const DefaultProcess = "company_incorporation"

// Checklist defines the required documents and structural rules for one
// filing process.
type Checklist struct {
	Name     string                 `yaml:"name"`
	Title    string                 `yaml:"title"`
	Required []schema.DocumentType  `yaml:"required"`
	Rules    []rules.StructuralRule `yaml:"rules"`
}

// Validate checks the checklist and every structural rule.
func (c *Checklist) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("checklist: name is required")
	}
	if len(c.Required) == 0 {
		return fmt.Errorf("checklist %s: at least one required document type", c.Name)
	}
	seen := make(map[schema.DocumentType]bool, len(c.Required))
	for _, t := range c.Required {
		if t == schema.DocumentTypeUnknown || !t.Valid() {
			return fmt.Errorf("checklist %s: invalid required type %v", c.Name, t)
		}
		if seen[t] {
			return fmt.Errorf("checklist %s: %s listed twice", c.Name, t)
		}
		seen[t] = true
	}
	ids := make(map[string]bool, len(c.Rules))
	for _, r := range c.Rules {
		if ids[r.ID] {
			return fmt.Errorf("checklist %s: duplicate rule id %q", c.Name, r.ID)
		}
		ids[r.ID] = true
		if _, err := r.Validate(); err != nil {
			return fmt.Errorf("checklist %s: %w", c.Name, err)
		}
	}
	return nil
}

// Describe returns a human-readable summary of the checklist.
func (c *Checklist) Describe() string {
	var sb strings.Builder
	title := c.Title
	if title == "" {
		title = c.Name
	}
	sb.WriteString(fmt.Sprintf("%s (%s)\n", title, c.Name))
	sb.WriteString("\nRequired documents:\n")
	for _, t := range c.Required {
		sb.WriteString(fmt.Sprintf("- %s\n", t.Label()))
	}
	if len(c.Rules) > 0 {
		sb.WriteString("\nStructural rules:\n")
		for _, r := range c.Rules {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", r.ID, r.Description))
		}
	}
	return sb.String()
}

// Registry maps process names to checklists.
type Registry struct {
	lists map[string]*Checklist
}

// NewRegistry returns a registry holding the built-in checklists.
func NewRegistry() *Registry {
	r := &Registry{lists: make(map[string]*Checklist)}
	for _, c := range []*Checklist{companyIncorporation(), branchRegistration(), changeOfRegisteredAddress()} {
		r.lists[c.Name] = c
	}
	return r
}

// Add validates c and registers it, replacing any checklist of the same name.
func (r *Registry) Add(c *Checklist) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.lists[c.Name] = c
	return nil
}

type checklistFile struct {
	Checklists []*Checklist `yaml:"checklists"`
}

// LoadFile adds the checklists declared in a YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading checklist file: %w", err)
	}
	var f checklistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing checklist file %s: %w", path, err)
	}
	for _, c := range f.Checklists {
		if err := r.Add(c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

// Get returns the checklist for a process. Both the stable name and the
// title are accepted, case-insensitively.
func (r *Registry) Get(name string) (*Checklist, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if c, ok := r.lists[norm]; ok {
		return c, nil
	}
	for _, c := range r.lists {
		if strings.EqualFold(c.Title, norm) || strings.EqualFold(strings.ReplaceAll(norm, " ", "_"), c.Name) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown process %q: valid processes are %s",
		schema.ErrChecklistConfigMissing, name, strings.Join(r.Names(), ", "))
}

// Names returns the registered process names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.lists))
	for n := range r.lists {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns a built-in checklist by name.
func Get(name string) (*Checklist, error) {
	return NewRegistry().Get(name)
}
