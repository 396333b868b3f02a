package cmd

import (
	"fmt"
	"time"

	"wayfarer/database"
	"wayfarer/email"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Manage stored email templates",
}

var templatesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert built-in email templates that are missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := bootstrap(); err != nil {
			return err
		}
		defer shutdownDatabase()

		ctx, cancel := commandContext(30 * time.Second)
		defer cancel()

		if err := database.EnsureIndexes(ctx); err != nil {
			return err
		}
		n, err := email.EnsureDefaultTemplates(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d of %d built-in templates\n", n, len(email.BuiltinKeys()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesSeedCmd)
}
