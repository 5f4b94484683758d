package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/types"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
)

const waitInterval = 2 * time.Second

func newDeploymentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deployment", "deploy", "d"},
		Short:   "Manage tenant deployments",
	}

	cmd.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newCreateCmd(a),
		newLifecycleCmd(a, "redeploy", "Run the provisioning pipeline again", true, a.redeploy),
		newLifecycleCmd(a, "suspend", "Suspend an active deployment", false, a.suspend),
		newLifecycleCmd(a, "activate", "Reactivate a suspended deployment", false, a.activate),
		newConfigCmd(a),
		newLogsCmd(a),
		newHealthCmd(a),
	)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			items, err := a.client.Deployments(ctx, tenant)
			if err != nil {
				return err
			}
			return a.renderDeployments(items)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "only list deployments of this tenant")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <deployment-id>",
		Short: "Show one deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			d, err := a.client.Deployment(ctx, id)
			if err != nil {
				return err
			}
			return a.renderDeployment(d)
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		req  types.DeploymentCreateRequest
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a deployment from a template",
		Example: `  deployctl deployments create --tenant t-42 --template basic-crm --company Acme
  deployctl deployments create --tenant t-42 --template voice-agent --feature calendar=false --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := patchFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			req.Config = patch

			ctx, cancel := a.context()
			defer cancel()
			d, err := a.client.CreateDeployment(ctx, req)
			if err != nil {
				return err
			}
			if wait {
				if d, err = a.client.Wait(ctx, d.ID, waitInterval); err != nil {
					return err
				}
			}
			return a.renderDeployment(d)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TenantID, "tenant", "", "tenant id (required)")
	f.StringVar(&req.TemplateID, "template", "", "template id (required)")
	f.StringVar(&req.AppName, "app-name", "", "display name; defaults to \"<company> <template>\"")
	f.BoolVar(&wait, "wait", false, "wait until the pipeline settles")
	addConfigFlags(f)
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

type lifecycleOp func(ctx context.Context, id uuid.UUID) (*models.Deployment, error)

func (a *app) redeploy(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return a.client.Redeploy(ctx, id)
}

func (a *app) suspend(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return a.client.Suspend(ctx, id)
}

func (a *app) activate(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return a.client.Activate(ctx, id)
}

func newLifecycleCmd(a *app, name, short string, waitable bool, op lifecycleOp) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   name + " <deployment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			d, err := op(ctx, id)
			if err != nil {
				return err
			}
			if wait {
				if d, err = a.client.Wait(ctx, id, waitInterval); err != nil {
					return err
				}
			}
			return a.renderDeployment(d)
		},
	}
	if waitable {
		cmd.Flags().BoolVar(&wait, "wait", false, "wait until the pipeline settles")
	}
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config <deployment-id>",
		Short: "Update a deployment's configuration",
		Long: `Merge configuration into a deployment. Branding, feature and integration
changes redeploy the application; customizations apply without a pipeline run.`,
		Example: `  deployctl deployments config 6f1c2a52-... --maintenance=true
  deployctl deployments config 6f1c2a52-... --company "Acme Labs" --feature voice_agent=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if len(patch.Sections()) == 0 {
				return fmt.Errorf("nothing to update: pass at least one configuration flag")
			}
			ctx, cancel := a.context()
			defer cancel()
			d, err := a.client.UpdateConfig(ctx, id, patch)
			if err != nil {
				return err
			}
			return a.renderDeployment(d)
		},
	}
	addConfigFlags(cmd.Flags())
	return cmd
}

func newLogsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <deployment-id>",
		Short: "Show the deployment audit log, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			entries, err := a.client.Logs(ctx, id)
			if err != nil {
				return err
			}
			return a.renderLogs(entries)
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health <deployment-id>",
		Short: "Probe a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			res, err := a.client.Health(ctx, id)
			if err != nil {
				return err
			}
			return a.renderHealth(res)
		},
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid deployment id %q", raw)
	}
	return id, nil
}

func addConfigFlags(f *pflag.FlagSet) {
	f.String("company", "", "branding: company name")
	f.String("primary-color", "", "branding: primary color (#rrggbb)")
	f.String("secondary-color", "", "branding: secondary color (#rrggbb)")
	f.String("logo-url", "", "branding: logo URL")
	f.StringToString("feature", nil, "feature toggle name=true|false (repeatable)")
	f.StringToString("integration", nil, "integration toggle name=true|false (repeatable)")
	f.String("custom-domain", "", "customizations: custom domain")
	f.Bool("ssl", true, "customizations: issue a TLS certificate")
	f.Bool("maintenance", false, "customizations: maintenance mode")
}

// patchFromFlags builds a patch from the flags the user actually set.
func patchFromFlags(f *pflag.FlagSet) (models.ConfigPatch, error) {
	var p models.ConfigPatch

	str := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetString(name)
		return &v
	}
	boolean := func(name string) *bool {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetBool(name)
		return &v
	}

	b := models.BrandingPatch{
		CompanyName:    str("company"),
		PrimaryColor:   str("primary-color"),
		SecondaryColor: str("secondary-color"),
		LogoURL:        str("logo-url"),
	}
	if b.CompanyName != nil || b.PrimaryColor != nil || b.SecondaryColor != nil || b.LogoURL != nil {
		p.Branding = &b
	}

	c := models.CustomizationsPatch{
		CustomDomain:    str("custom-domain"),
		SSLEnabled:      boolean("ssl"),
		MaintenanceMode: boolean("maintenance"),
	}
	if c.CustomDomain != nil || c.SSLEnabled != nil || c.MaintenanceMode != nil {
		p.Customizations = &c
	}

	var err error
	if p.Features, err = toggles(f, "feature"); err != nil {
		return p, err
	}
	if p.Integrations, err = toggles(f, "integration"); err != nil {
		return p, err
	}
	return p, nil
}

func toggles(f *pflag.FlagSet, name string) (map[string]bool, error) {
	if !f.Changed(name) {
		return nil, nil
	}
	raw, _ := f.GetStringToString(name)
	out := make(map[string]bool, len(raw))
	for k, v := range raw {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("--%s %s=%s: value must be true or false", name, k, v)
		}
		out[k] = on
	}
	return out, nil
}
