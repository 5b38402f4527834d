package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/tripauth/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "tripauth",
		Short:             "Session and credential lifecycle tooling for the trip-planning client",
		SilenceUsage:      true,
		PersistentPreRunE: prepareConfiguration,
	}

	rootCmd.PersistentFlags().String("env_file", ".env", "Optional dotenv file loaded before reading configuration")
	rootCmd.PersistentFlags().String("log_level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log_dev", false, "Human-readable console logs")
	rootCmd.PersistentFlags().String("log_file", "", "Optional log file with daily rotation")
	_ = viper.BindPFlag("env_file", rootCmd.PersistentFlags().Lookup("env_file"))

	viper.SetEnvPrefix("TRIPAUTH")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newAuthorityCommand(), newSessionCommand())
	return rootCmd
}

func prepareConfiguration(command *cobra.Command, arguments []string) error {
	if err := loadEnvironmentFile(viper.GetString("env_file")); err != nil {
		return err
	}
	return bindFlags(command)
}

const (
	configCodeEnvFile = "config.env_file"
	configCodeLogger  = "config.logger"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// loadEnvironmentFile applies path without overriding variables already set.
// A missing file is not an error.
func loadEnvironmentFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return configError(configCodeEnvFile, err.Error())
	}
	return nil
}

// bindFlags binds the flags of the command being run. Subcommands reuse key
// names, so binding happens once the command is known.
func bindFlags(command *cobra.Command) error {
	var bindErr error
	command.Flags().VisitAll(func(flag *pflag.Flag) {
		if err := viper.BindPFlag(flag.Name, flag); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return bindErr
}

func buildLogger() (*zap.Logger, func(), error) {
	logger, closeSink, err := logging.New(logging.Config{
		Level:    viper.GetString("log_level"),
		Dev:      viper.GetBool("log_dev"),
		FilePath: viper.GetString("log_file"),
	})
	if err != nil {
		return nil, nil, configError(configCodeLogger, err.Error())
	}
	return logger, func() {
		_ = logger.Sync()
		_ = closeSink()
	}, nil
}
