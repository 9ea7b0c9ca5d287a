package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mrpc/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the MRPC data directory",
	Long: `Creates mrpc.json and the data directory in the current working directory,
opens the database (creating the schema), and seeds users from the configured
YAML seed file when one exists.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false,
		"Rewrite mrpc.json even if it already exists")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	configPath := filepath.Join(root, "mrpc.json")
	if _, statErr := os.Stat(configPath); statErr == nil && !initForce {
		// Idempotent: already initialized is success
		fmt.Println("MRPC already initialized.")
		fmt.Printf("Configuration at: %s\n", configPath)
		fmt.Println("\nRun 'mrpc init --force' to rewrite the configuration.")
	} else {
		cfg := config.DefaultConfig()
		if err := os.MkdirAll(filepath.Join(root, cfg.DataDir), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := cfg.Save(root); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Wrote %s\n", configPath)
	}

	// Opening the store creates or migrates the schema
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.close()

	seedPath := app.cfg.SeedFilePath(app.root)
	if seedPath != "" {
		created, err := app.users.SeedFromFile(seedPath)
		if err != nil {
			return err
		}
		if created > 0 {
			fmt.Printf("Seeded %d user(s) from %s\n", created, seedPath)
		}
	}

	fmt.Printf("Database ready at %s\n", app.cfg.DatabasePath(app.root))
	return nil
}
