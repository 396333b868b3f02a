package cmd

import (
	"errors"
	"fmt"
	"time"

	"wayfarer/database"
	"wayfarer/models"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	adminName     string
	adminEmail    string
	adminPassword string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrator accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create an administrator account",
	Example: `  wayfarer admin create --name "Site Admin" --email admin@example.com --password s3cret!`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(adminPassword) < 6 {
			return errors.New("password must be at least 6 characters")
		}
		if _, err := bootstrap(); err != nil {
			return err
		}
		defer shutdownDatabase()

		user, err := models.NewUser(adminName, adminEmail, adminPassword, models.RoleAdmin)
		if err != nil {
			return err
		}
		user.IsEmailVerified = true

		ctx, cancel := commandContext(10 * time.Second)
		defer cancel()

		if _, err := database.Users.InsertOne(ctx, user); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("a user with email %s already exists", user.Email)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", user.Email, user.ID.Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVar(&adminName, "name", "Administrator", "Display name")
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "Login email (required)")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "Initial password (required)")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
}
