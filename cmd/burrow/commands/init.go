package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new burrow project",
	Long: `Initialize a new burrow project in the current directory.

Creates:
  • burrow.yml   - pipeline configuration with the default inputs and outputs
  • .env.example - optional environment settings (run ledger address)
  • data/        - directory for the source shapefiles and crime CSV

Use --force to overwrite an existing burrow.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand; -c is the global --config flag and -f reads as "file"
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force reinitialization (overwrites existing burrow.yml)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.Error(
				"project already initialized",
				fmt.Sprintf("Found existing %s in %s", scaffold.ConfigFile, dir),
				[]string{"Reinitialize (overwrites burrow.yml):\n  burrow init --force"},
			)
		}
	}

	if err := scaffold.Initialize(dir, forceInit); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess()
	return nil
}
