package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"nucleofind/pkg/config"
	"nucleofind/pkg/logging"
)

// envPrefix is the prefix of environment overrides, e.g. NUCLEOFIND_TILING_OVERLAP.
const envPrefix = "NUCLEOFIND"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	v          *viper.Viper

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: newViper()}

	cmd := &cobra.Command{
		Use:   "nucleofind",
		Short: "Sliding-window nucleic-acid prediction over crystallographic density maps",
		Long: "nucleofind resamples a unit cell onto an isotropic working grid, classifies it\n" +
			"in overlapping cubic tiles and folds the predictions back onto the cell by\n" +
			"symmetry. This binary exposes the geometry of a run and its configuration.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "nucleofind.yaml", "config file path")
	pf.Int("tile-size", 0, "tile edge in voxels")
	pf.Int("overlap", 0, "stride between tile origins in voxels")
	pf.Float64("spacing", 0, "working grid spacing in Å")
	pf.Bool("full-cell", false, "predict over the whole unit cell")
	pf.String("output-mode", "", "raw or argmax")
	pf.Int("workers", 0, "concurrent model calls (0 = one per CPU)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console, json)")
	for key, flag := range flagKeys {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(
		newPlanCommand(a),
		newConfigCommand(a),
		newSpaceGroupsCommand(),
		newVersionCommand(),
	)
	return cmd
}

// flagKeys maps configuration keys to the flags that override them.
var flagKeys = map[string]string{
	"tiling.tileSize":      "tile-size",
	"tiling.overlap":       "overlap",
	"sampling.spacing":     "spacing",
	"sampling.fullCell":    "full-cell",
	"inference.outputMode": "output-mode",
	"inference.workers":    "workers",
	"log.level":            "log-level",
	"log.format":           "log-format",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// init loads the YAML file, applies flag and environment overrides, validates
// the result and builds the logger.
func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	applyOverrides(a.v, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	a.logger.Debug("Configuration loaded", zap.String("path", a.configPath))
	return nil
}

// applyOverrides copies every key set by a changed flag or an environment
// variable into cfg. Flags win over the environment.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("tiling.tileSize") {
		cfg.Tiling.TileSize = v.GetInt("tiling.tileSize")
	}
	if v.IsSet("tiling.overlap") {
		cfg.Tiling.Overlap = v.GetInt("tiling.overlap")
	}
	if v.IsSet("sampling.spacing") {
		cfg.Sampling.Spacing = v.GetFloat64("sampling.spacing")
	}
	if v.IsSet("sampling.fullCell") {
		cfg.Sampling.FullCell = v.GetBool("sampling.fullCell")
	}
	if v.IsSet("inference.outputMode") {
		cfg.Inference.OutputMode = v.GetString("inference.outputMode")
	}
	if v.IsSet("inference.workers") {
		cfg.Inference.Workers = v.GetInt("inference.workers")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "nucleofind %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
