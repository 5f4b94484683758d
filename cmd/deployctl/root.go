package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/client"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v      *viper.Viper
	out    io.Writer
	client *client.Client
}

func (a *app) output() string { return a.v.GetString("output") }

func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.v.GetDuration("timeout"))
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), out: os.Stdout}

	root := &cobra.Command{
		Use:   "deployctl",
		Short: "Operate tenant deployments through the engine API",
		Long: `deployctl lists templates and manages tenant deployments: create,
redeploy, suspend, activate, reconfigure, and inspect logs and health.

The API address is taken from --api-url or DEPLOYCTL_API_URL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			switch a.output() {
			case outputTable, outputJSON:
			default:
				return fmt.Errorf("unknown output format %q (use table or json)", a.output())
			}

			opts := []client.Option{}
			if a.v.GetBool("verbose") {
				if _, err := logger.InitWithWriter("debug", "console", cmd.ErrOrStderr()); err != nil {
					return err
				}
				opts = append(opts, client.WithLogger(logger.NewLeveled("deployctl")))
			}
			c, err := client.New(a.v.GetString("api-url"), opts...)
			if err != nil {
				return err
			}
			a.client = c
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8080", "engine API base URL")
	flags.StringP("output", "o", outputTable, "output format: table or json")
	flags.Duration("timeout", 30*time.Second, "overall timeout for a command")
	flags.BoolP("verbose", "v", false, "log HTTP requests to stderr")

	a.v.SetEnvPrefix("DEPLOYCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	root.AddCommand(newTemplatesCmd(a))
	root.AddCommand(newDeploymentsCmd(a))
	return root
}
