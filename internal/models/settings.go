package models

import "sort"

// Branding is the tenant-facing look of a deployment.
type Branding struct {
	CompanyName    string `json:"company_name,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
}

// Customizations are tenant overrides that never require a pipeline run.
type Customizations struct {
	CustomDomain    string `json:"custom_domain,omitempty"`
	SSLEnabled      bool   `json:"ssl_enabled"`
	MaintenanceMode bool   `json:"maintenance_mode"`
}

// Settings is the configuration bundle stored on a deployment.
type Settings struct {
	Branding       Branding        `json:"branding"`
	Features       map[string]bool `json:"features"`
	Integrations   map[string]bool `json:"integrations"`
	Customizations Customizations  `json:"customizations"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Features = cloneToggles(s.Features)
	out.Integrations = cloneToggles(s.Integrations)
	return out
}

// EnabledFeatures returns the names of enabled features, sorted.
func (s Settings) EnabledFeatures() []string { return enabled(s.Features) }

// EnabledIntegrations returns the names of enabled integrations, sorted.
func (s Settings) EnabledIntegrations() []string { return enabled(s.Integrations) }

func enabled(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, on := range m {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func cloneToggles(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// BrandingPatch carries only the branding fields a caller wants to change.
type BrandingPatch struct {
	CompanyName    *string `json:"company_name,omitempty"`
	PrimaryColor   *string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	SecondaryColor *string `json:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
	LogoURL        *string `json:"logo_url,omitempty" validate:"omitempty,url"`
}

// CustomizationsPatch carries only the customization fields a caller wants to change.
type CustomizationsPatch struct {
	CustomDomain    *string `json:"custom_domain,omitempty" validate:"omitempty,fqdn"`
	SSLEnabled      *bool   `json:"ssl_enabled,omitempty"`
	MaintenanceMode *bool   `json:"maintenance_mode,omitempty"`
}

// ConfigPatch is a partial configuration. Nil sections are left untouched;
// toggle maps are merged key by key.
type ConfigPatch struct {
	Branding       *BrandingPatch       `json:"branding,omitempty"`
	Features       map[string]bool      `json:"features,omitempty"`
	Integrations   map[string]bool      `json:"integrations,omitempty"`
	Customizations *CustomizationsPatch `json:"customizations,omitempty"`
}

// Section names reported in audit details.
const (
	SectionBranding       = "branding"
	SectionFeatures       = "features"
	SectionIntegrations   = "integrations"
	SectionCustomizations = "customizations"
)

// Sections lists the sections the patch touches, in a fixed order.
func (p ConfigPatch) Sections() []string {
	var out []string
	if p.Branding != nil {
		out = append(out, SectionBranding)
	}
	if p.Features != nil {
		out = append(out, SectionFeatures)
	}
	if p.Integrations != nil {
		out = append(out, SectionIntegrations)
	}
	if p.Customizations != nil {
		out = append(out, SectionCustomizations)
	}
	return out
}

// RequiresRedeploy is true when the patch touches anything the running
// application is built from. Customizations alone never qualify.
func (p ConfigPatch) RequiresRedeploy() bool {
	return p.Branding != nil || p.Features != nil || p.Integrations != nil
}

// Apply merges the patch into s and returns the result; s is not modified.
func (p ConfigPatch) Apply(s Settings) Settings {
	out := s.Clone()
	if b := p.Branding; b != nil {
		setString(&out.Branding.CompanyName, b.CompanyName)
		setString(&out.Branding.PrimaryColor, b.PrimaryColor)
		setString(&out.Branding.SecondaryColor, b.SecondaryColor)
		setString(&out.Branding.LogoURL, b.LogoURL)
	}
	for k, v := range p.Features {
		out.Features[k] = v
	}
	for k, v := range p.Integrations {
		out.Integrations[k] = v
	}
	if c := p.Customizations; c != nil {
		setString(&out.Customizations.CustomDomain, c.CustomDomain)
		if c.SSLEnabled != nil {
			out.Customizations.SSLEnabled = *c.SSLEnabled
		}
		if c.MaintenanceMode != nil {
			out.Customizations.MaintenanceMode = *c.MaintenanceMode
		}
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
