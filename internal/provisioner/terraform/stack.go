package terraform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
)

// Code is a rendered terraform module.
type Code struct {
	MainTF      string
	VariablesTF string
	OutputsTF   string
	ProviderTF  string
}

// Resource is one block of the tenant stack.
type Resource struct {
	ID         string
	Type       string
	Properties map[string]any
}

// ResourceRenderer renders one resource type to HCL.
type ResourceRenderer interface {
	Render(r Resource) (string, error)
	Validate(r Resource) error
}

// Compiler turns a deployment target into the terraform module that backs it.
type Compiler struct {
	region    string
	renderers map[string]ResourceRenderer
}

func NewCompiler(region string) *Compiler {
	c := &Compiler{region: region, renderers: map[string]ResourceRenderer{}}
	c.Register("aws_s3_bucket", bucketRenderer{})
	c.Register("aws_security_group", securityGroupRenderer{})
	return c
}

func (c *Compiler) Register(resourceType string, r ResourceRenderer) {
	c.renderers[resourceType] = r
}

// Stack lists the resources every deployment gets.
func Stack(t provisioner.Target) []Resource {
	return []Resource{
		{
			ID:   "assets",
			Type: "aws_s3_bucket",
			Properties: map[string]any{
				"bucket_name": t.Workload + "-assets",
				"versioning":  true,
			},
		},
		{
			ID:   "web",
			Type: "aws_security_group",
			Properties: map[string]any{
				"name":        t.Workload + "-web",
				"description": "HTTP ingress for " + t.Domain,
				"ports":       []int{80, 443},
			},
		},
	}
}

func (c *Compiler) Compile(t provisioner.Target) (*Code, error) {
	var main, outputs strings.Builder

	for _, r := range Stack(t) {
		renderer, ok := c.renderers[r.Type]
		if !ok {
			return nil, fmt.Errorf("unsupported resource type: %s", r.Type)
		}
		if err := renderer.Validate(r); err != nil {
			return nil, fmt.Errorf("validation failed for %s: %w", r.ID, err)
		}
		hcl, err := renderer.Render(r)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", r.ID, err)
		}
		main.WriteString(hcl)
		main.WriteString("\n")
		fmt.Fprintf(&outputs, "output %q {\n  value = %s.%s.id\n}\n\n", r.ID+"_id", r.Type, r.ID)
	}

	return &Code{
		MainTF:      main.String(),
		VariablesTF: variables(t),
		OutputsTF:   outputs.String(),
		ProviderTF:  provider(c.region),
	}, nil
}

func provider(region string) string {
	return fmt.Sprintf(`terraform {
  required_providers {
    aws = {
      source  = "hashicorp/aws"
      version = "~> 5.0"
    }
  }
}

provider "aws" {
  region = %q
}
`, region)
}

func variables(t provisioner.Target) string {
	tags := map[string]string{
		"ManagedBy":  "ikon-engine",
		"Tenant":     t.TenantID,
		"Deployment": t.DeploymentID.String(),
		"Template":   t.TemplateID,
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("variable \"tags\" {\n  type = map(string)\n  default = {\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "    %s = %q\n", k, tags[k])
	}
	b.WriteString("  }\n}\n")
	return b.String()
}

type bucketRenderer struct{}

func (bucketRenderer) Validate(r Resource) error {
	if _, ok := r.Properties["bucket_name"].(string); !ok {
		return fmt.Errorf("missing required field: bucket_name")
	}
	return nil
}

func (bucketRenderer) Render(r Resource) (string, error) {
	var hcl strings.Builder
	fmt.Fprintf(&hcl, "resource \"aws_s3_bucket\" %q {\n  bucket = %q\n  tags   = var.tags\n}\n",
		r.ID, r.Properties["bucket_name"])

	if v, _ := r.Properties["versioning"].(bool); v {
		fmt.Fprintf(&hcl, `
resource "aws_s3_bucket_versioning" "%s_versioning" {
  bucket = aws_s3_bucket.%s.id

  versioning_configuration {
    status = "Enabled"
  }
}
`, r.ID, r.ID)
	}
	return hcl.String(), nil
}

type securityGroupRenderer struct{}

func (securityGroupRenderer) Validate(r Resource) error {
	for _, field := range []string{"name", "description"} {
		if _, ok := r.Properties[field].(string); !ok {
			return fmt.Errorf("missing required field: %s", field)
		}
	}
	return nil
}

func (securityGroupRenderer) Render(r Resource) (string, error) {
	var hcl strings.Builder
	fmt.Fprintf(&hcl, "resource \"aws_security_group\" %q {\n  name        = %q\n  description = %q\n",
		r.ID, r.Properties["name"], r.Properties["description"])

	ports, _ := r.Properties["ports"].([]int)
	for _, p := range ports {
		fmt.Fprintf(&hcl, `
  ingress {
    from_port   = %d
    to_port     = %d
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }
`, p, p)
	}

	hcl.WriteString(`
  egress {
    from_port   = 0
    to_port     = 0
    protocol    = "-1"
    cidr_blocks = ["0.0.0.0/0"]
  }

  tags = var.tags
}
`)
	return hcl.String(), nil
}
