package cmd

import (
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid",
	Short: "Web Push key utilities",
}

var vapidGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a VAPID key pair for admin push notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return fmt.Errorf("generate VAPID keys: %w", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Add these to your .env file:")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\n", publicKey)
		fmt.Fprintf(w, "VAPID_PRIVATE_KEY=%s\n", privateKey)
		fmt.Fprintln(w, "VAPID_SUBJECT=mailto:admin@example.com")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vapidCmd)
	vapidCmd.AddCommand(vapidGenerateCmd)
}
