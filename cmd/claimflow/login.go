package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/claimflow/internal/backend"
	"github.com/Veraticus/claimflow/internal/cli"
	"github.com/Veraticus/claimflow/internal/common"
	"github.com/Veraticus/claimflow/internal/identity"
	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember your user id",
		Long: `Login authenticates against the claim backend and stores the returned
user id, so later submissions are made on your behalf.

Use --signup (with --name) to create a new account instead of signing in.
Use --user-id to store an id you already have without contacting the backend,
or --logout to forget the stored id.`,
		RunE: runLogin,
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	cmd.Flags().String("name", "", "display name for --signup")
	cmd.Flags().Bool("signup", false, "create a new account")
	cmd.Flags().String("user-id", "", "store this user id directly")
	cmd.Flags().Bool("logout", false, "forget the stored user id")

	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	userID, _ := cmd.Flags().GetString("user-id")
	logout, _ := cmd.Flags().GetBool("logout")
	signup, _ := cmd.Flags().GetBool("signup")
	name, _ := cmd.Flags().GetString("name")
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	users := identity.NewStoreProvider(store)

	if logout {
		if err := users.Forget(ctx); err != nil {
			return err
		}
		writeLine(out, cli.FormatSuccess("Logged out"))
		return nil
	}

	if strings.TrimSpace(userID) == "" {
		if email == "" || password == "" {
			return common.NewUserError("provide --email and --password, or --user-id", common.ErrMissingConfig)
		}

		client, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
		if err != nil {
			return err
		}
		if signup {
			userID, err = client.Signup(ctx, name, email, password)
			if err != nil {
				return common.NewUserError("signup failed", err)
			}
		} else {
			userID, err = client.Login(ctx, email, password)
			if err != nil {
				return common.NewUserError("login failed", err)
			}
		}
	}

	if err := users.Remember(ctx, userID); err != nil {
		return err
	}

	common.LogInfo("Stored user id", common.Fields{"namespace": cfg.Storage.Namespace})
	writeLine(out, cli.FormatSuccess(fmt.Sprintf("Logged in as %s", strings.TrimSpace(userID))))
	return nil
}
