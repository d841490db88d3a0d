// Package cmd implements idpctl, which manages credentials directly in the
// configured store. It is how the first API key is created.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"go.pilab.hu/idcore/config"
	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/server"
	"go.pilab.hu/idcore/log"
	"go.pilab.hu/idcore/services"
)

// AppName is the binary name.
const AppName = "idpctl"

var (
	appLogger log.Logger
	store     domain.RepositoryProvider
	opts      services.Options

	verbose bool

	// openStore is replaced in tests.
	openStore = func(ctx context.Context) (domain.RepositoryProvider, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		return server.OpenStore(ctx, cfg)
	}
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "idpctl manages API keys and signup tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			appLogger = log.NewZerologAdapterWithWriter(cmd.ErrOrStderr(), level)
			opts = services.Options{Logger: appLogger}

			s, err := openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			store = s
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if store == nil {
				return nil
			}
			err := store.Close(cmd.Context())
			store = nil
			return err
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newAPIKeyCmd(), newSignupTokenCmd())

	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printYAML writes v as YAML using its JSON field names.
func printYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
