package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kiesman99/bandcrop/internal/crop"
	"github.com/kiesman99/bandcrop/internal/logging"
	"github.com/kiesman99/bandcrop/pkg/raster"
)

var cfgFile string

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bandcrop [flags] <raster>...",
	Short: "Crop multi-band rasters to their non-zero pixels",
	Long: `bandcrop trims every given raster to the smallest box that contains a
non-zero value in any band and writes each band as a separate 64-bit float
GeoTIFF.

Outputs go to <dir>/<name>/<band>.tif, where <dir> is the folder holding the
raster (or --output-root) and <name> is the file name up to its first dot.

Examples:
  # Crop one scene, writing scene/0.tif, scene/1.tif, ... next to it
  bandcrop scene.tif

  # Crop several rasters into one output root, with world files
  bandcrop --output-root ./out --worldfile a.tif b.tif.zst

  # Treat tiny values as background and keep the input reference system
  bandcrop --epsilon 1e-9 --inherit-crs utm.tif

  # Start HTTP server
  bandcrop serve --port 8080`,
	// If no subcommand is specified and we have args, crop them
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runCrop(cmd, args)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bandcrop.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Int("epsg", crop.DefaultEPSG, "EPSG code stamped on every output")
	rootCmd.PersistentFlags().Bool("inherit-crs", false, "stamp the input's EPSG code when it declares one")
	rootCmd.PersistentFlags().Float64("epsilon", 0, "treat |value| <= epsilon as background (0 keeps exact non-zero test)")
	rootCmd.PersistentFlags().BoolP("worldfile", "w", false, "write a world file next to every band")

	// Output options
	rootCmd.Flags().StringP("output-root", "o", "", "parent of the output folders (default: the raster's folder)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("crs.epsg", rootCmd.PersistentFlags().Lookup("epsg"))
	viper.BindPFlag("crs.inherit", rootCmd.PersistentFlags().Lookup("inherit-crs"))
	viper.BindPFlag("scan.epsilon", rootCmd.PersistentFlags().Lookup("epsilon"))
	viper.BindPFlag("output.worldfile", rootCmd.PersistentFlags().Lookup("worldfile"))
	viper.BindPFlag("output.root", rootCmd.Flags().Lookup("output-root"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".bandcrop" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".bandcrop")
	}

	// BANDCROP_CRS_EPSG overrides crs.epsg
	viper.SetEnvPrefix("bandcrop")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// cropOptions builds pipeline options from the bound configuration.
func cropOptions(log *zap.Logger) (crop.Options, error) {
	epsg := viper.GetInt("crs.epsg")
	if epsg < 0 || epsg > 0xFFFF {
		return crop.Options{}, fmt.Errorf("invalid EPSG code %d", epsg)
	}
	eps := viper.GetFloat64("scan.epsilon")
	if eps < 0 {
		return crop.Options{}, fmt.Errorf("epsilon must not be negative, got %v", eps)
	}

	opts := crop.Options{
		OutputRoot:       viper.GetString("output.root"),
		EPSG:             epsg,
		InheritReference: viper.GetBool("crs.inherit"),
		WorldFile:        viper.GetBool("output.worldfile"),
		Logger:           log,
	}
	if eps > 0 {
		opts.Foreground = crop.Tolerance(eps)
	}
	return opts, nil
}

func runCrop(cmd *cobra.Command, args []string) error {
	log, err := logging.New(cmd.ErrOrStderr(), viper.GetString("log.level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	opts, err := cropOptions(log)
	if err != nil {
		return err
	}
	opts.Notifier = crop.NotifyFunc(func(msg string) {
		fmt.Fprintln(cmd.ErrOrStderr(), msg)
	})

	fs := afero.NewOsFs()
	layers := make([]raster.Layer, len(args))
	for i, path := range args {
		layers[i] = raster.NewFileLayer(fs, path)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results := crop.New(fs, opts).ProcessSelection(ctx, layers)
	return summarize(cmd, results)
}

// summarize prints one line per layer and combines the failures.
func summarize(cmd *cobra.Command, results []*crop.Result) error {
	var errs error
	for _, res := range results {
		switch res.Status {
		case crop.StatusExported:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d band(s) -> %s\n", res.Layer, len(res.Files), res.Dir)
		case crop.StatusAborted:
			fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped (%v)\n", res.Layer, res.Reason)
		default:
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", res.Layer, res.Err))
		}
	}
	return errs
}
