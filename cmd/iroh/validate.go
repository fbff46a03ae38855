package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/infrastructure/config"
	"github.com/iroh-home/iroh-core/internal/operator"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the command table",
		Long: `Loads the configuration file, then parses the command table and binds
every handler and transform it names. Unknown names are errors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			commandsPath, _ := cmd.Flags().GetString("commands")

			states, err := validate(configPath, commandsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK, %d states bound\n", states)
			return nil
		},
	}
	cmd.Flags().String("commands", "", "command table to check instead of dtmf.commands_file")
	return cmd
}

// validate returns the number of states in the command table. Bindings are
// always checked strictly, whatever dtmf.strict says.
func validate(configPath, commandsPath string) (int, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, fmt.Errorf("loading config: %w", err)
	}
	if commandsPath == "" {
		commandsPath = cfg.DTMF.CommandsFile
	}

	defs, err := dtmf.LoadFile(commandsPath)
	if err != nil {
		return 0, fmt.Errorf("loading command table: %w", err)
	}

	op := operator.New(operator.Config{})
	engine := dtmf.NewEngine(op.Capabilities(), dtmf.WithStrictBindings(true))
	defer engine.Close()

	if err := engine.Load(defs); err != nil {
		return 0, fmt.Errorf("binding command table %s: %w", commandsPath, err)
	}
	return len(defs), nil
}
