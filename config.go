package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "THAIBINGO"

type Config struct {
	allowedOrigins    []string
	bind              string
	databaseURL       string
	disconnectGrace   time.Duration
	envFile           string
	maxLifetime       time.Duration
	minPlayers        int
	minPlayersPlaying int
	port              int
	prefix            string
	profile           bool
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxLifetime <= 0 {
		return fmt.Errorf("invalid max lifetime (must be positive): %s", c.maxLifetime)
	}
	if c.disconnectGrace <= 0 {
		return fmt.Errorf("invalid disconnect grace (must be positive): %s", c.disconnectGrace)
	}
	if c.minPlayers < 0 || c.minPlayersPlaying < 0 {
		return fmt.Errorf("invalid minimum player counts: %d, %d", c.minPlayers, c.minPlayersPlaying)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// originAllowed reports whether a browser origin may open sockets or create
// rooms. An empty allow-list admits everyone.
func originAllowed(cfg *Config, origin string) bool {
	if len(cfg.allowedOrigins) == 0 {
		return true
	}
	return slices.Contains(cfg.allowedOrigins, origin)
}

// applyEnv fills every flag not given on the command line from its
// THAIBINGO_* environment variable, after loading the optional env file.
func applyEnv(fs *pflag.FlagSet, v *viper.Viper, envFile string) error {
	if envFile == "" {
		envFile = os.Getenv(envPrefix + "_ENV_FILE")
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	var errs []error

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("invalid value for %s: %w", f.Name, err))
			}
		}
	})

	return errors.Join(errs...)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "thaibingo",
		Short:         "Real-time Thai bingo rooms, with a moderator calling characters to players over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnv(cmd.Flags(), v, cfg.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", nil, "origins allowed to create rooms and connect, empty allows all (env: THAIBINGO_ALLOWED_ORIGINS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: THAIBINGO_BIND)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string for room snapshots, in-memory if empty (env: THAIBINGO_DATABASE_URL)")
	fs.DurationVar(&cfg.disconnectGrace, "disconnect-grace", 5*time.Minute, "time after a disconnect before an empty room is removed (env: THAIBINGO_DISCONNECT_GRACE)")
	fs.StringVar(&cfg.envFile, "env-file", "", "path to a .env file to load before reading the environment (env: THAIBINGO_ENV_FILE)")
	fs.DurationVar(&cfg.maxLifetime, "max-lifetime", 2*time.Hour, "maximum lifetime of a room (env: THAIBINGO_MAX_LIFETIME)")
	fs.IntVar(&cfg.minPlayers, "min-players", 2, "players needed to start when the moderator is not playing (env: THAIBINGO_MIN_PLAYERS)")
	fs.IntVar(&cfg.minPlayersPlaying, "min-players-playing", 1, "players needed to start when the moderator is playing (env: THAIBINGO_MIN_PLAYERS_PLAYING)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: THAIBINGO_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: THAIBINGO_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: THAIBINGO_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: THAIBINGO_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: THAIBINGO_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: THAIBINGO_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: THAIBINGO_VERSION)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("thaibingo v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
