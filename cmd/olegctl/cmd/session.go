package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var registerCmd = &cobra.Command{
	Use:     "register",
	Short:   "Create an account and log in",
	Args:    cobra.NoArgs,
	PreRunE: requireCredentials,
	RunE: func(cmd *cobra.Command, _ []string) error {
		username, password := viper.GetString("username"), viper.GetString("password")
		if _, err := client().Register(username, password); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		return login(cmd, username, password)
	},
}

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Log in and store the session token",
	Args:    cobra.NoArgs,
	PreRunE: requireCredentials,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return login(cmd, viper.GetString("username"), viper.GetString("password"))
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Revoke the stored session token",
	Args:    cobra.NoArgs,
	PreRunE: requireToken,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := client().Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		if err := SaveSession(ConfigFile, viper.GetString("username"), ""); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{registerCmd, loginCmd} {
		c.Flags().String("username", "", "account name")
		c.Flags().String("password", "", "account password (or OLEG_PASSWORD)")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(logoutCmd)
}

// requireCredentials binds the flags of the running command, so register and
// login do not overwrite each other's bindings.
func requireCredentials(cmd *cobra.Command, _ []string) error {
	_ = viper.BindPFlag("username", cmd.Flags().Lookup("username"))
	_ = viper.BindPFlag("password", cmd.Flags().Lookup("password"))
	if viper.GetString("username") == "" || viper.GetString("password") == "" {
		return fmt.Errorf("username and password are required")
	}
	return nil
}

func login(cmd *cobra.Command, username, password string) error {
	token, err := client().Login(username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := SaveSession(ConfigFile, username, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", username)
	return nil
}
