package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lizzyg/gemrouter"
	"github.com/lizzyg/gemrouter/internal/config"
)

type authReport struct {
	Source   string                   `yaml:"source"`
	Provider gemrouter.ProviderConfig `yaml:"provider"`
	Aliases  map[string]string        `yaml:"model_aliases,omitempty"`
}

func newAuthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show the resolved provider configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			cfg := c.Config().Redacted()
			b, err := yaml.Marshal(authReport{Source: c.Source(), Provider: cfg, Aliases: cfg.ModelAliases()})
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = a.io.Stdout.Write(b)
			return err
		},
	}
}

func defaultModel() string { return config.DefaultModel }
