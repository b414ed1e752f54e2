package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/config"
	"github.com/joestump/joe-contact/internal/db"
	"github.com/joestump/joe-contact/internal/store"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage inbox accounts",
	}
	cmd.AddCommand(newAdminCreateCmd())
	return cmd
}

func newAdminCreateCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a password account, or reset the password of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := strings.TrimSpace(args[0])
			if username == "" {
				return errors.New("username must not be empty")
			}
			if password == "" {
				password = os.Getenv("CONTACT_ADMIN_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()
			if err := db.Migrate(database, cfg.DB.Driver); err != nil {
				return err
			}

			admins := store.NewAdminStore(database)
			_, err = admins.CreateLocal(cmd.Context(), username, hash)
			switch {
			case errors.Is(err, store.ErrUsernameTaken):
				if err := admins.SetPassword(cmd.Context(), username, hash); err != nil {
					return fmt.Errorf("reset password: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", username)
			case err != nil:
				return fmt.Errorf("create admin: %w", err)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: $CONTACT_ADMIN_PASSWORD or prompt)")
	return cmd
}
