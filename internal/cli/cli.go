// Package cli implements modctl, the operator command line.
//
// modctl works on the same documents as the server, through the same
// services. It is a single-user client, so it remembers who is logged in
// with the session pointer in the local store, the way the site's pages
// did, instead of a token.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/minelux/internal/app"
	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/model"
	"github.com/sakif/minelux/internal/service"
)

// Opener builds the App. The real one reads config; tests pass one backed
// by a temporary database. The caller owns the App it returns and closes it
// once the command has finished, whether or not the command succeeded.
type Opener func(ctx context.Context) (*app.App, error)

// env carries the opened App from PersistentPreRunE to the subcommands.
type env struct {
	open Opener
	app  *app.App
}

// RootCommand creates modctl's root command with every subcommand attached.
func RootCommand(open Opener) *cobra.Command {
	e := &env{open: open}

	rootCmd := &cobra.Command{
		Use:           "modctl",
		Short:         "Manage the minelux mod listing and its users",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			e.app = a
			return nil
		},
	}

	rootCmd.AddCommand(
		loginCommand(e),
		logoutCommand(e),
		whoamiCommand(e),
		registerCommand(e),
		modsCommand(e),
		usersCommand(e),
	)
	return rootCmd
}

// requireAdmin fails unless the session user is an admin.
func (e *env) requireAdmin(ctx context.Context) error {
	username, ok := e.app.Users.CurrentUser(ctx)
	if !ok {
		return errors.New("not logged in, run `modctl login` first")
	}
	if !e.app.Users.IsAdmin(username) {
		return apperror.Forbidden("admin role required")
	}
	return nil
}

// =========================================================================
// SESSION
// =========================================================================

func loginCommand(e *env) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Log in and remember the user for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !e.app.Users.Login(cmd.Context(), args[0], password) {
				return errors.New("invalid username or password")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e.app.Users.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func whoamiCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			username, ok := e.app.Users.CurrentUser(cmd.Context())
			if !ok {
				fmt.Fprintln(out, "guest")
				return nil
			}
			u, err := e.app.Users.Get(username)
			if err != nil {
				// The user was deleted since logging in.
				fmt.Fprintln(out, "guest")
				return nil
			}
			fmt.Fprintf(out, "%s (%s)\n", u.Username, u.Role)
			return nil
		},
	}
}

func registerCommand(e *env) *cobra.Command {
	var password, image string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.app.Users.Register(cmd.Context(), args[0], password, image); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered and logged in as %s\n", strings.TrimSpace(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (at least 6 characters)")
	cmd.Flags().StringVar(&image, "image", "", "profile image URL")
	return cmd
}

// =========================================================================
// MODS
// =========================================================================

func modsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mods",
		Short: "List, add and delete mods",
	}
	cmd.AddCommand(modsListCommand(e), modsAddCommand(e), modsDeleteCommand(e))
	return cmd
}

func modsListCommand(e *env) *cobra.Command {
	var f service.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mods, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mods := service.FilterMods(e.app.Mods.Mods(cmd.Context()), f)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tVERSION\tTYPE\tLINK")
			for _, m := range mods {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Version, m.Type, m.Link)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "substring of the name or description")
	cmd.Flags().StringVar(&f.Version, "version", "", "exact game version")
	cmd.Flags().StringVar(&f.Type, "type", "", "exact mod type")
	return cmd
}

func modsAddCommand(e *env) *cobra.Command {
	var in service.ModInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a mod (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			mod, err := e.app.Mods.AddMod(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", mod.Name, mod.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "mod name")
	cmd.Flags().StringVar(&in.Version, "version", "", "game version")
	cmd.Flags().StringVar(&in.Type, "type", "", "mod type")
	cmd.Flags().StringVar(&in.Link, "link", "", "download link")
	cmd.Flags().StringVar(&in.Desc, "desc", "", "description")
	cmd.Flags().StringVar(&in.Image, "image", "", "image URL")
	return cmd
}

func modsDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mod by ID (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			if err := e.app.Mods.DeleteMod(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

// =========================================================================
// USERS
// =========================================================================

func usersCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and delete users (admin)",
	}
	cmd.AddCommand(usersListCommand(e), usersDeleteCommand(e))
	return cmd
}

func usersListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), e.app.Users)
		},
	}
}

func printUsers(w io.Writer, users *service.UserService) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE\tCREATED")
	for _, u := range users.List() {
		created := "-"
		if u.CreatedAt != "" {
			created = model.CreatedDate(u.CreatedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.Role, created)
	}
	return tw.Flush()
}

func usersDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			if err := e.app.Users.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
