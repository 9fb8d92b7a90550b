package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dgellow/identity-bot/internal"
	"github.com/dgellow/identity-bot/internal/config"
	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/spf13/cobra"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.Version,
		"app": map[string]any{
			"baseURL":        "https://bot.yourcompany.com",
			"addr":           ":3978",
			"name":           config.DefaultAppName,
			"allowedOrigins": []string{"https://teams.microsoft.com"},
			"signingKey":     map[string]string{"$env": "SIGNING_KEY"},
			"rateLimit": map[string]any{
				"requestsPerSecond": config.DefaultRequestsPerSecond,
				"burst":             config.DefaultBurst,
				"trustProxyHeaders": false,
			},
		},
		"storage": map[string]any{
			"kind": string(config.StorageMemory),
			"ttl":  "720h",
		},
		"providers": map[string]any{
			config.ProviderGoogle: map[string]any{
				"clientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
			},
			config.ProviderAzureADv1: map[string]any{
				"clientId":     map[string]string{"$env": "AZUREAD_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "AZUREAD_CLIENT_SECRET"},
				"tenantId":     "common",
				"resource":     "https://graph.microsoft.com",
			},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(w io.Writer, path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Fprintf(w, "Validating: %s\n", path)

	printIssues := func(title string, issues []config.ValidationError) {
		if len(issues) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s (%d):\n", title, len(issues))
		for _, issue := range issues {
			if issue.Path != "" {
				fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
			} else {
				fmt.Fprintf(w, "  - %s\n", issue.Message)
			}
		}
	}
	printIssues("Errors", result.Errors)
	printIssues("Warnings", result.Warnings)

	fmt.Fprintln(w)
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Fprintln(w, "Result: PASS")
	case len(result.Errors) == 0:
		fmt.Fprintln(w, "Result: FAIL (warnings present)")
	default:
		fmt.Fprintln(w, "Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func loadApp(ctx context.Context, path string) (*internal.IdentityBot, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log.LogInfoWithFields("main", "Starting identity-bot", map[string]any{
		"version":  BuildVersion,
		"config":   path,
		"logLevel": log.GetLogLevel(),
	})

	app, err := internal.NewIdentityBot(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity bot: %w", err)
	}
	return app, nil
}

func newRootCommand() *cobra.Command {
	var configPath, logLevel string

	root := &cobra.Command{
		Use:           "identity-bot",
		Short:         "Chat bot that links chat users to OAuth2 identities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if logLevel == "" {
				return nil
			}
			return log.SetLogLevel(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "error, warn, info, debug or trace (overrides LOG_LEVEL)")

	requireConfig := func() error {
		if configPath == "" {
			return fmt.Errorf("--config flag is required")
		}
		return nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireConfig(); err != nil {
				return err
			}
			app, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "path to config file (required)")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal while the server handles OAuth callbacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireConfig(); err != nil {
				return err
			}
			// stdout carries the conversation
			log.SetOutput(cmd.ErrOrStderr())
			defer log.SetOutput(nil)

			app, err := loadApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), app, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	chat.Flags().StringVar(&configPath, "config", "", "path to config file (required)")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check a config file without resolving environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireConfig(); err != nil {
				return err
			}
			return validateConfig(cmd.OutOrStdout(), configPath)
		},
	}
	validate.Flags().StringVar(&configPath, "config", "", "path to config file (required)")

	configInit := &cobra.Command{
		Use:   "config-init <path>",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generateDefaultConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default config at: %s\n", args[0])

			key, err := crypto.GenerateSecureToken()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Example signing key: export SIGNING_KEY=%s\n", key)
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), BuildVersion)
		},
	}

	root.AddCommand(serve, chat, validate, configInit, version)
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.LogError("%v", err)
		os.Exit(1)
	}
}
