package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrescue/roadsync/internal/seed"
	"github.com/openrescue/roadsync/internal/ui"
)

var seedCmd = &cobra.Command{
	Use:   "seed [fixture.yaml]",
	Short: "Load demo fixtures into the database",
	Long: `Load fixtures into the configured database.

With no argument the built-in demo dataset is applied: a demo driver,
an approved mechanic, an admin, and one open request to claim (all
with password "demo-password"). Seeding is idempotent; records that
already exist are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fx := seed.Default()
		if len(args) == 1 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read fixture: %w", err)
			}
			fx, err = seed.Parse(data)
			if err != nil {
				return err
			}
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := seed.Apply(cmd.Context(), a.store, fx)
		if err != nil {
			return err
		}
		if created == 0 {
			fmt.Println(ui.RenderDim("Already seeded, nothing to do."))
			return nil
		}
		fmt.Println(ui.RenderPass(fmt.Sprintf("Seeded %d records", created)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
