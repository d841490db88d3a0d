package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.pilab.hu/idcore/services"
)

func newAPIKeyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "api-key",
		Short:   "Manage admin API keys",
		Aliases: []string{"api-keys"},
	}
	c.AddCommand(newAPIKeyCreateCmd())
	return c
}

func newAPIKeyCreateCmd() *cobra.Command {
	var (
		name      string
		expiresIn time.Duration
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return errors.New("--name is required")
			}

			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().UTC().Add(expiresIn)
				expiresAt = &t
			}

			issuer := services.NewTokenIssuer(store, opts)
			key, plaintext, err := issuer.CreateAPIKey(cmd.Context(), name, expiresAt)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Store this key now, it cannot be shown again.\n")
			return printYAML(cmd.OutOrStdout(), map[string]any{
				"id":        key.ID,
				"name":      key.Name,
				"key":       plaintext,
				"expiresAt": key.ExpiresAt,
			})
		},
	}

	c.Flags().StringVar(&name, "name", "", "name of the key")
	c.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime of the key, 0 for no expiry")

	return c
}
