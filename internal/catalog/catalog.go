// Package catalog is the read-only registry of deployment templates.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var builtin []byte

// Pricing is the list price of a template.
type Pricing struct {
	Monthly float64 `yaml:"monthly" json:"monthly"`
	Yearly  float64 `yaml:"yearly" json:"yearly"`
}

// BrandingDefaults are the starting brand values of a template.
type BrandingDefaults struct {
	PrimaryColor   string `yaml:"primary_color"`
	SecondaryColor string `yaml:"secondary_color"`
	LogoURL        string `yaml:"logo_url"`
}

// Defaults seed the configuration of a new deployment.
type Defaults struct {
	Branding       BrandingDefaults `yaml:"branding"`
	Features       map[string]bool  `yaml:"features"`
	Integrations   map[string]bool `yaml:"integrations"`
	Customizations struct {
		SSLEnabled bool `yaml:"ssl_enabled"`
	} `yaml:"customizations"`
}

// Template is an immutable bundle of features and pricing.
type Template struct {
	ID                    string   `yaml:"id" json:"id"`
	Name                  string   `yaml:"name" json:"name"`
	Description           string   `yaml:"description" json:"description"`
	Features              []string `yaml:"features" json:"features"`
	Pricing               Pricing  `yaml:"pricing" json:"pricing"`
	IncludedServices      []string `yaml:"included_services" json:"included_services"`
	AllowedCustomizations []string `yaml:"allowed_customizations" json:"allowed_customizations"`
	Artifact              string   `yaml:"artifact" json:"-"`
	Defaults              Defaults `yaml:"defaults" json:"-"`
}

// Settings builds the starting configuration for a deployment of t.
func (t Template) Settings() models.Settings {
	s := models.Settings{
		Branding: models.Branding{
			PrimaryColor:   t.Defaults.Branding.PrimaryColor,
			SecondaryColor: t.Defaults.Branding.SecondaryColor,
			LogoURL:        t.Defaults.Branding.LogoURL,
		},
		Features:       map[string]bool{},
		Integrations:   map[string]bool{},
		Customizations: models.Customizations{SSLEnabled: t.Defaults.Customizations.SSLEnabled},
	}
	for k, v := range t.Defaults.Features {
		s.Features[k] = v
	}
	for k, v := range t.Defaults.Integrations {
		s.Integrations[k] = v
	}
	return s
}

func (t Template) clone() Template {
	out := t
	out.Features = append([]string(nil), t.Features...)
	out.IncludedServices = append([]string(nil), t.IncludedServices...)
	out.AllowedCustomizations = append([]string(nil), t.AllowedCustomizations...)
	out.Defaults.Features = cloneMap(t.Defaults.Features)
	out.Defaults.Integrations = cloneMap(t.Defaults.Integrations)
	return out
}

func cloneMap(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Catalog is safe for concurrent use; it is never mutated after construction.
type Catalog struct {
	order []string
	byID  map[string]Template
}

type document struct {
	// Branding fills every template branding field left empty.
	Branding  BrandingDefaults `yaml:"branding"`
	Templates []Template       `yaml:"templates"`
}

// Load parses the catalog at path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	data := builtin
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a catalog from a YAML document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("catalog has no templates")
	}
	c := &Catalog{byID: make(map[string]Template, len(doc.Templates))}
	for _, t := range doc.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("catalog template %q has no id", t.Name)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		if err := mergo.Merge(&t.Defaults.Branding, doc.Branding); err != nil {
			return nil, fmt.Errorf("template %q branding defaults: %w", t.ID, err)
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// MustDefault returns the built-in catalog and panics if it does not parse.
func MustDefault() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// Templates returns every template in catalog order.
func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].clone())
	}
	return out
}

// Get looks a template up by id.
func (c *Catalog) Get(id string) (Template, error) {
	t, ok := c.byID[id]
	if !ok {
		return Template{}, appErr.TemplateNotFound(id)
	}
	return t.clone(), nil
}
