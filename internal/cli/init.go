package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/bounter/internal/config"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Aliases: []string{"configure"},
	Short:   "Create a configuration file interactively",
	Long: `Ask for provider API keys and the model fallback order, then write the
configuration file. Existing files are overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wizard := config.NewWizardWithIO(cmd.InOrStdin(), cmd.OutOrStdout())
		cfg, err := wizard.Run()
		if err != nil {
			return fmt.Errorf("setup aborted: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		loader := config.NewLoader(cfgFile)
		if err := loader.Save(cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", loader.GetConfigPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
