package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mouneyrac/moodle-local-hub/internal/config"
	"github.com/mouneyrac/moodle-local-hub/internal/hub"
	"github.com/mouneyrac/moodle-local-hub/internal/model"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Provision an access token for a site",
	Long: `Provision an access token bound to a site URL. The site completes its
registration by calling the site registration endpoint with this token; until
then the token resolves but carries no site record.

Examples:
  hubd token --config config.yaml --url https://moodle.example.org`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	tokenCmd.Flags().String("url", "", "Base URL of the site the token is issued to (required)")

	if err := tokenCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
	if err := tokenCmd.MarkFlagRequired("url"); err != nil {
		panic(err)
	}
}

func runToken(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	siteURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return fmt.Errorf("failed to get url flag: %w", err)
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.GetStorageDriver() != config.StorageDriverPostgres {
		return fmt.Errorf("token provisioning requires the postgres storage driver")
	}

	st, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	creds := hub.LocalCredentials{}
	token, err := creds.Issue(ctx)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	comm := &model.Communication{Token: token, RemoteURL: siteURL}
	if err := st.UpsertCommunication(ctx, comm); err != nil {
		return fmt.Errorf("failed to store token binding: %w", err)
	}

	slog.Info("Token provisioned", "url", siteURL)
	fmt.Println(token)
	return nil
}
