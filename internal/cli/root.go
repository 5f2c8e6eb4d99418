// Package cli implements the slotwatch command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slotwatch/slotwatch/internal/app"
	"github.com/slotwatch/slotwatch/internal/config"
	"github.com/slotwatch/slotwatch/internal/logging"
)

const serviceName = "slotwatch"

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version   string
	BuildTime string
}

type options struct {
	configPath string
	verbose    bool
	logJSON    bool
	build      BuildInfo
}

// NewRootCommand builds the slotwatch command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	o := &options{build: build}

	root := &cobra.Command{
		Use:   "slotwatch",
		Short: "Find car-share vehicles free for a whole reservation window",
		Long: `slotwatch logs in to the car-share member site, visits each configured
station and lists the vehicles that are free for every slot of the window.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "configuration file (default "+config.DefaultPath+" if present)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&o.logJSON, "log-json", false, "log JSON instead of console lines")

	root.AddCommand(
		newScanCommand(o),
		newHistoryCommand(o),
		newTokenCommand(o),
		newVersionCommand(o),
	)
	return root
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Resolve(o.configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !o.logJSON {
		cfg.Log.Format = logging.FormatConsole
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (o *options) loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.Options{
		ServiceName: serviceName,
		Version:     o.build.Version,
		LogOutput:   cmd.ErrOrStderr(),
	})
}

func newVersionCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "slotwatch %s (built %s)\n", o.build.Version, o.build.BuildTime)
			return err
		},
	}
}
