package main

import (
	"github.com/spf13/cobra"
)

func newTemplatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Browse the template catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all deployment templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			items, err := a.client.Templates(ctx)
			if err != nil {
				return err
			}
			return a.renderTemplates(items)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <template-id>",
		Short: "Show one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			tpl, err := a.client.Template(ctx, args[0])
			if err != nil {
				return err
			}
			return a.renderTemplate(tpl)
		},
	})

	return cmd
}
