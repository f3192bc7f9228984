package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nativeoauth/codegrant/pkg/codegrant/auth"
	"github.com/nativeoauth/codegrant/pkg/codegrant/config"
	"github.com/nativeoauth/codegrant/pkg/system"
	"github.com/nativeoauth/codegrant/pkg/version"
)

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// Context is the parent of every command context; the binary passes a
	// signal-aware one.
	Context context.Context
	// Logger is built from the settings when nil.
	Logger *zap.SugaredLogger
	// OpenBrowser replaces the platform browser launcher when set.
	OpenBrowser func(url string) error
}

type runtimeState struct {
	configPath      string
	credentialsPath string
	outputFormat    string
	debug           bool
	cfg             *config.Config
	writer          io.Writer
	log             *zap.SugaredLogger
	openBrowser     func(url string) error
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:  cfg.ConfigPath,
		writer:      cfg.OutputWriter,
		log:         cfg.Logger,
		openBrowser: cfg.OpenBrowser,
	}

	root := &cobra.Command{
		Use:          "codegrant",
		Short:        "OAuth2 authorization code grant for native apps",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			return rt.EnsureConfigLoaded()
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVar(&rt.credentialsPath, "credentials", "", "Path to the app credentials JSON file")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	root.PersistentFlags().BoolVarP(&rt.debug, "debug", "v", false, "Enable debug logging")

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	root.SetContext(context.WithValue(parent, runtimeKey{}, rt))

	root.AddCommand(
		NewLoginCommand(),
		NewRefreshCommand(),
		NewAppsCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// EnsureConfigLoaded reads the settings file, falling back to defaults when it
// does not exist, then applies CODEGRANT_* overrides.
func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.LoadOrDefault(rt.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rt.cfg = cfg
	if rt.log == nil {
		logger, err := system.NewLogger(rt.debug || cfg.Settings.Debug)
		if err != nil {
			return err
		}
		rt.log = logger.Sugar()
	}
	return nil
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.log == nil {
		return zap.NewNop().Sugar()
	}
	return rt.log
}

func (rt *runtimeState) OutputFormat() string {
	if rt.outputFormat != "" {
		return rt.outputFormat
	}
	if rt.cfg != nil && rt.cfg.Settings.OutputFormat != "" {
		return rt.cfg.Settings.OutputFormat
	}
	return "table"
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) settings() config.Settings {
	if rt.cfg == nil {
		return config.DefaultConfig().Settings
	}
	return rt.cfg.Settings
}

func (rt *runtimeState) credentialsFile() string {
	if rt.credentialsPath != "" {
		return rt.credentialsPath
	}
	if rt.cfg != nil && rt.cfg.CredentialsFile != "" {
		return rt.cfg.CredentialsFile
	}
	return config.DefaultCredentialsPath()
}

func (rt *runtimeState) Credentials() (*config.Credentials, error) {
	return config.LoadCredentials(rt.credentialsFile())
}

func (rt *runtimeState) userAgent() string {
	if ua := rt.settings().UserAgent; ua != "" {
		return ua
	}
	return version.UserAgent()
}

func (rt *runtimeState) httpTimeout() time.Duration {
	return rt.settings().HTTPTimeout
}

func (rt *runtimeState) TokenClient() *auth.TokenClient {
	s := rt.settings()
	return auth.NewTokenClient(
		auth.WithSuccessStatus(s.TokenSuccessStatus),
		auth.WithLogger(rt.Logger()),
		auth.WithTimeout(s.HTTPTimeout),
		auth.WithUserAgent(rt.userAgent()),
	)
}
