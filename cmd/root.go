package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	config "taskboard.com/taskboard/internal/configs"
)

// errReported is returned once the failure has already been shown to the
// user, so Execute only sets the exit code.
var errReported = errors.New("already reported")

var (
	settings = config.NewViper()
	cfgFile  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:           "taskboard",
	Short:         "Task board client and reference task service",
	Long:          "Browse and edit tasks interactively, script them from the shell, or run the task service locally with serve.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	flags.String("api-url", "", "base URL of the task service")
	flags.String("socket-url", "", "push channel endpoint (defaults to the API URL)")
	flags.Duration("request-timeout", 0, "timeout for each API request")
	flags.String("log-file", "", "write diagnostic logs to this file")

	bindFlags(settings, flags, map[string]string{
		config.KeyAPIURL:         "api-url",
		config.KeySocketURL:      "socket-url",
		config.KeyRequestTimeout: "request-timeout",
		config.KeyLogFile:        "log-file",
	})
}

// loadConfig reads dotenv files, the optional config file and the
// environment, in that order of precedence below the flags.
func loadConfig() (config.Config, error) {
	config.LoadEnvFiles(envFiles...)
	if err := config.ReadFile(settings, cfgFile); err != nil {
		return config.Config{}, err
	}
	return config.Load(settings)
}

// bindFlags lets a flag override its config key when it is set.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}
