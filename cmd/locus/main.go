package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/go-go-golems/locus/cmd/locus/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "locus",
	Short: "locus keeps LLM conversations as a tree of branches",
	Long: "locus stores conversations as trees: every branch is a node that copies the " +
		"history it was forked from, so alternative answers can be explored side by side.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func initCommands(rootCmd *cobra.Command, configPath string) error {
	// Load the variables from the environment
	viper.SetEnvPrefix("locus")
	cmds.SetDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.locus")

		// get XDG config path for locus
		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(xdgConfigPath, "locus"))
		}
	}

	// Read the configuration file into Viper
	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		// Config file was found but another error was produced
		return err
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Bind the variables to the command-line flags
	err = viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		return err
	}

	initLogger()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("Loaded configuration")

	return nil
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28, //days
					Compress:   false,
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// logging flags
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.locus/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	// storage and model access
	rootCmd.PersistentFlags().String("store", "", "State store: file or sqlite")
	rootCmd.PersistentFlags().String("state-file", "", "State file, .json or .yaml (default ~/.locus/state.json)")
	rootCmd.PersistentFlags().String("sqlite-path", "", "SQLite database (default ~/.locus/locus.db)")
	rootCmd.PersistentFlags().String("catalog", "", "Model catalog YAML replacing the built-in one")
	rootCmd.PersistentFlags().String("api-key", "", "OpenRouter API key, not persisted")
	rootCmd.PersistentFlags().String("base-url", "https://openrouter.ai/api/v1", "OpenRouter API base URL")
	rootCmd.PersistentFlags().String("provider", "openrouter", "Reply provider: openrouter or ollama (OLLAMA_HOST sets the server)")

	// parse the flags one time just to catch --config
	configFile := ""
	for idx, arg := range os.Args {
		if arg == "--config" {
			if len(os.Args) > idx+1 {
				configFile = os.Args[idx+1]
			}
		}
	}

	err := initCommands(rootCmd, configFile)
	if err != nil {
		panic(err)
	}
	cmds.AddCommands(rootCmd)
}
