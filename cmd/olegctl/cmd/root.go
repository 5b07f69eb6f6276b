// Package cmd contains the olegctl commands.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oleg-messenger/oleg/clients/go/oleg"
)

var ConfigFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "olegctl",
	Short:         "Administer an Oleg chat server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// deferring this allows user to override config path with cli option
	cobra.OnInitialize(func() {
		if err := InitConfig(ConfigFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})

	defaultConfigFilePath := filepath.Join(GetConfigDir(), "olegctl.yaml")
	rootCmd.PersistentFlags().StringVar(&ConfigFile, "config", defaultConfigFilePath, "config file")
	rootCmd.PersistentFlags().String("server", oleg.DefaultURL, "Oleg server URL")

	// expose to application via viper
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

// client builds an API client from the loaded configuration.
func client() *oleg.Client {
	return oleg.NewClient(viper.GetString("server"), viper.GetString("token"))
}

// requireToken fails commands that need a session when none is stored.
func requireToken(_ *cobra.Command, _ []string) error {
	if viper.GetString("token") == "" {
		return fmt.Errorf("not logged in, run `olegctl login` first")
	}
	return nil
}
