package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the storage branch and empty documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.BootstrapAll(cmd.Context()); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s storage ready on branch %s of %s/%s\n",
			green("✓"), a.cfg.StorageBranch, a.cfg.StorageOwner, a.cfg.StorageRepo)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)
}
