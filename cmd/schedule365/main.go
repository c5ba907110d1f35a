package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/njt/schedule365/internal/assistant"
	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/internal/output"
	"github.com/njt/schedule365/libgo365"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var configMgr *libgo365.ConfigManager

var (
	logger     = logging.Discard()
	appMetrics = metrics.New()
)

var (
	rootCmd = &cobra.Command{
		Use:   "schedule365",
		Short: "Schedule Microsoft Teams meetings from plain English",
		Long: `schedule365 turns requests like "tutoring with Alice Thursday at noon" into
Outlook calendar events with a Teams link, looking up attendees in your
organization's directory.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			jsonLogs, _ := cmd.Flags().GetBool("log-json")
			logger = logging.New(os.Stderr, logging.Options{Debug: debug, JSON: jsonLogs})
			slog.SetDefault(logger)

			if path, _ := cmd.Flags().GetString("config"); path != "" {
				configMgr = libgo365.NewConfigManagerAt(path)
				return nil
			}

			var err error
			configMgr, err = libgo365.NewConfigManager()
			if err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.schedule365/config.json)")

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig returns the file config overlaid with .env and the environment.
func loadConfig() (*libgo365.Config, error) {
	config, err := configMgr.LoadEffective()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config, nil
}

func newParser(config *libgo365.Config) (*intent.OpenAIParser, error) {
	return intent.NewOpenAIParser(intent.OpenAIConfig{
		APIKey:   config.OpenAIKey,
		BaseURL:  config.OpenAIBaseURL,
		Model:    config.Model,
		TimeZone: config.TimeZone,
		Logger:   logger,
	})
}

// newAssistant builds the pipeline. parser may be nil for commands that
// never parse free text.
func newAssistant(cmd *cobra.Command, config *libgo365.Config, parser intent.Parser) (*assistant.Assistant, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	auth, err := libgo365.NewAuthenticator(config.AuthConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	deviceCode, _ := cmd.Flags().GetBool("device-code")
	timeout, _ := cmd.Flags().GetDuration("auth-timeout")

	return assistant.New(assistant.Options{
		Authenticator: auth,
		Parser:        parser,
		RedirectURL:   config.RedirectURL,
		AuthTimeout:   timeout,
		DeviceCode:    deviceCode,
		Prompt: func(message string) {
			fmt.Fprintln(os.Stderr, message)
		},
		Metrics: appMetrics,
		Logger:  logger,
	})
}

// addAuthFlags registers the sign-in flags shared by Graph commands.
func addAuthFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("device-code", false, "Sign in with a device code instead of the browser redirect")
	cmd.Flags().Duration("auth-timeout", libgo365.DefaultAuthTimeout, "How long to wait for the browser sign-in")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Microsoft 365 and show the signed-in user",
	Long: `Runs the sign-in handshake: a local listener on the redirect URI receives the
authorization code from the browser. Tokens are kept in memory only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newAssistant(cmd, config, nil)
		if err != nil {
			return err
		}

		client, err := a.Authenticate(cmd.Context())
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}

		me, err := client.GetMe(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get user info: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.WriteJSON(os.Stdout, me)
		}

		fmt.Printf("Signed in as %s (%s)\n", me.DisplayName, me.Email())
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage schedule365 configuration`,
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set configuration values",
	Long: `Set configuration values like tenant ID, client ID and default time zone.
The OpenAI key is never written to disk; set OPENAI_KEY in the environment or a .env file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := configMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		setString := func(flag string, dst *string) {
			if cmd.Flags().Changed(flag) {
				*dst, _ = cmd.Flags().GetString(flag)
			}
		}
		setString("tenant-id", &config.TenantID)
		setString("client-id", &config.ClientID)
		setString("redirect-url", &config.RedirectURL)
		setString("timezone", &config.TimeZone)
		setString("model", &config.Model)
		setString("openai-base-url", &config.OpenAIBaseURL)

		if cmd.Flags().Changed("scopes") {
			scopes, _ := cmd.Flags().GetString("scopes")
			config.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
		}

		if err := configMgr.Save(config); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Configuration saved to %s\n", configMgr.Path())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  `Show the configuration after applying .env and environment overrides`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.WriteJSON(os.Stdout, config)
		}

		keyStatus := "not set"
		if config.OpenAIKey != "" {
			keyStatus = "set"
		}

		fmt.Printf("Config file:     %s\n", configMgr.Path())
		fmt.Printf("Tenant ID:       %s\n", config.TenantID)
		fmt.Printf("Client ID:       %s\n", config.ClientID)
		fmt.Printf("Redirect URL:    %s\n", config.RedirectURL)
		fmt.Printf("Scopes:          %s\n", strings.Join(config.Scopes, " "))
		fmt.Printf("Time zone:       %s\n", config.TimeZone)
		fmt.Printf("Model:           %s\n", config.Model)
		if config.OpenAIBaseURL != "" {
			fmt.Printf("OpenAI base URL: %s\n", config.OpenAIBaseURL)
		}
		fmt.Printf("OpenAI key:      %s\n", keyStatus)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	addAuthFlags(loginCmd)
	loginCmd.Flags().Bool("json", false, "Output as JSON")

	configSetCmd.Flags().String("tenant-id", "", "Azure AD tenant ID (default: common)")
	configSetCmd.Flags().String("client-id", "", "Azure AD application (client) ID")
	configSetCmd.Flags().String("redirect-url", "", "Redirect URI registered for the app")
	configSetCmd.Flags().String("timezone", "", "Default time zone, e.g. 'Pacific Standard Time'")
	configSetCmd.Flags().String("model", "", "Chat model used to parse requests")
	configSetCmd.Flags().String("openai-base-url", "", "OpenAI-compatible API base URL")
	configSetCmd.Flags().String("scopes", "", "Delegated Graph scopes, comma- or space-separated")
	configShowCmd.Flags().Bool("json", false, "Output as JSON")

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
