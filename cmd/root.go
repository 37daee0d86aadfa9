package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/food-access-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "food-access",
	Short: "Food accessibility graphs for US places",
	Long: `Builds drivable street networks around places, fuses them with grocery
locations and tract demographics, and scores every node and edge by travel
time to food and network centrality.

Settings come from ./config.yaml, overridden by FOODACCESS_* environment
variables (e.g. FOODACCESS_ACCESS_RADIUS_M=5000, FOODACCESS_CACHE_DRIVER=redis).

  run      analyze one place and write node and edge tables
  batch    analyze many places with retries and a result cache
  places   list the place names a batch would process
  serve    expose cached results over HTTP
  export   load results into PostGIS`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := applyLogFlags(cmd, c); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		zap.L().Debug("config loaded",
			zap.String("command", cmd.Name()),
			zap.Float64("radius_m", cfg.Access.RadiusM),
			zap.Float64("buffer_m", cfg.Access.BufferM),
			zap.String("grocery_tier", cfg.Access.GroceryTier),
			zap.String("cache_driver", cfg.Cache.Driver),
			zap.Bool("svi", cfg.SVI.Path != ""),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	addLogFlags(rootCmd)
}

// addLogFlags registers the logging overrides shared by every subcommand.
func addLogFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides log.level")
	cmd.PersistentFlags().String("log-format", "", "log format (json, console); overrides log.format")
}

// applyLogFlags copies explicitly set logging flags onto c.
func applyLogFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		level, err := flags.GetString("log-level")
		if err != nil {
			return eris.Wrap(err, "log-level flag")
		}
		c.Log.Level = level
	}
	if flags.Changed("log-format") {
		format, err := flags.GetString("log-format")
		if err != nil {
			return eris.Wrap(err, "log-format flag")
		}
		if format != "json" && format != "console" {
			return eris.Errorf("log-format must be json or console, got %q", format)
		}
		c.Log.Format = format
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
