package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/services"
)

func newSignupTokenCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "signup-token",
		Short:   "Manage signup tokens",
		Aliases: []string{"signup-tokens"},
	}
	c.AddCommand(newSignupTokenCreateCmd(), newSignupTokenStatusCmd(), newSignupTokenListCmd(), newSignupTokenDeleteCmd())
	return c
}

func newSignupTokenCreateCmd() *cobra.Command {
	var (
		ttl        time.Duration
		usageLimit int
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Issue a signup token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			issuer := services.NewTokenIssuer(store, opts)
			token, err := issuer.IssueSignupToken(cmd.Context(), ttl, usageLimit)
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), token)
		},
	}

	c.Flags().DurationVar(&ttl, "ttl", 7*24*time.Hour, "how long the token stays valid")
	c.Flags().IntVar(&usageLimit, "usage-limit", 1, "number of signups the token allows")

	return c
}

func newSignupTokenStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status TOKEN",
		Short: "Show the state of a signup token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := services.NewSignupService(store, opts).Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), info)
		},
	}
}

type signupTokenRow struct {
	Token     string             `json:"token"`
	State     domain.SignupState `json:"state"`
	Usage     string             `json:"usage"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

func newSignupTokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List signup tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := store.SignupTokenRepository().ListSignupTokens(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			rows := make([]signupTokenRow, 0, len(tokens))
			for _, t := range tokens {
				rows = append(rows, signupTokenRow{
					Token:     t.Token,
					State:     t.State(now),
					Usage:     fmt.Sprintf("%d/%d", t.UsageCount, t.UsageLimit),
					ExpiresAt: t.ExpiresAt,
				})
			}
			return printYAML(cmd.OutOrStdout(), rows)
		},
	}
}

func newSignupTokenDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a signup token by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.SignupTokenRepository().DeleteSignupToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printYAML(cmd.OutOrStdout(), map[string]any{"deleted": args[0]})
		},
	}
}
