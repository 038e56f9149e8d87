// Command rocpipe drives internal/session/internal/pipeline end to end with
// a synthetic audio source and task generator, the way cmd/mutagen exercises
// pkg/synchronization. It is not a real sender/receiver: RTP, FEC, sockets,
// resampling, and PCM capture are all out of scope (see SPEC_FULL.md).
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/roc-streaming/rocpipe/cmd"
	"github.com/roc-streaming/rocpipe/internal/config"
	"github.com/roc-streaming/rocpipe/pkg/logging"
)

var rootConfiguration struct {
	// configPath is the path to the YAML configuration file.
	configPath string
	// logLevel names the root logger's level (disabled, error, warn, info,
	// debug, trace), converted via logging.NameToLevel.
	logLevel string
}

var loadedConfig *config.Configuration

var rootCommand = &cobra.Command{
	Use:           "rocpipe",
	Short:         "rocpipe runs a demo real-time task pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func persistentPreRunE(*cobra.Command, []string) error {
	level, ok := logging.NameToLevel(rootConfiguration.logLevel)
	if !ok {
		return errors.Errorf("invalid --log-level %q", rootConfiguration.logLevel)
	}
	logging.RootLogger.SetLevel(level)

	loaded, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		return err
	}
	loadedConfig = loaded
	return nil
}

func init() {
	rootCommand.PersistentPreRunE = persistentPreRunE

	flags := rootCommand.PersistentFlags()
	flags.StringVar(&rootConfiguration.configPath, "config", defaultConfigPath(), "path to a rocpipe configuration file")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "info", "log level: disabled, error, warn, info, debug, trace")

	cobra.EnableCommandSorting = false
	rootCommand.AddCommand(runCommand, statsCommand)
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rocpipe.yml"
	}
	return dir + "/rocpipe/rocpipe.yml"
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
