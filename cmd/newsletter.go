package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"wayfarer/email"

	"github.com/spf13/cobra"
)

var previewTo string

var newsletterCmd = &cobra.Command{
	Use:   "newsletter",
	Short: "Newsletter maintenance commands",
}

var sendWeeklyCmd = &cobra.Command{
	Use:   "send-weekly",
	Short: "Send the weekly digest now",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdownDatabase()

		ctx, cancel := commandContext(jobTimeout)
		defer cancel()

		report, err := email.NewNewsletter(email.Init(cfg), nil, cfg.NewsletterBatchDelay).RunWeekly(ctx)
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print this week's digest without sending it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := bootstrap()
		if err != nil {
			return err
		}
		defer shutdownDatabase()

		ctx, cancel := commandContext(30 * time.Second)
		defer cancel()

		msg, ok, err := email.NewNewsletter(email.Init(cfg), nil, 0).PreviewWeekly(ctx, previewTo)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintln(w, "No posts published in the last 7 days, nothing would be sent.")
			return nil
		}
		fmt.Fprintf(w, "To: %s\nSubject: %s\n\n%s\n", msg.To, msg.Subject, msg.Text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newsletterCmd)
	newsletterCmd.AddCommand(sendWeeklyCmd, previewCmd)

	previewCmd.Flags().StringVar(&previewTo, "to", "preview@example.com", "Recipient address shown in the preview")
}
