package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/workertiers/internal/config"
	tierrors "github.com/Iron-Ham/workertiers/internal/errors"
	"github.com/Iron-Ham/workertiers/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "workertiers",
	Short: "Worker performance tiering with k-means",
	Long: `workertiers derives attendance, work-hour, punctuality and consistency
features for every worker, clusters them with k-means, ranks the clusters
into performance tiers and exports a portable inference graph.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints err for the user. A pipeline failure with an internal
// cause is reduced to its stage; the run log has the detail.
func reportError(w io.Writer, err error) {
	var te tierrors.TierError
	if !errors.As(err, &te) || tierrors.IsUserFacing(err) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "Error: stage %s failed with an internal error (%s); see the run log for details\n",
		tierrors.StageOf(err), tierrors.GetSeverity(err))
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/workertiers/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// .env values become process env before viper reads WORKERTIERS_*
	_ = godotenv.Load()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WORKERTIERS")
	// Replace dots with underscores for nested keys in env vars
	// e.g., WORKERTIERS_SOURCE_KIND for source.kind
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger opens the run log under the configured log directory and
// mirrors records as text to console.
func newLogger(cfg *config.Config, console io.Writer) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Dir:   cfg.Paths.LogDir,
		Level: cfg.Logging.Level,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
		Console: console,
	})
}
