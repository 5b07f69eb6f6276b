package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// InitConfig reads the config file, letting OLEG_* environment variables
// override it. A missing file is not an error; it is created on first save.
func InitConfig(file string) error {
	if file == "" {
		return errors.New("config file path is required")
	}
	viper.SetConfigType("yaml")
	viper.SetConfigFile(file)

	// allow env vars to override config file
	viper.SetEnvPrefix("oleg")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetConfigDir obtains the configuration directory in a cross-platform manner,
// always respecting the XDG_CONFIG_HOME env var, using standard defaults on all OS's,
// but overriding to ~/.config on macOS
func GetConfigDir() string {
	var xdgConfigHome string
	if runtime.GOOS == "darwin" && os.Getenv("XDG_CONFIG_HOME") == "" {
		home, _ := os.UserHomeDir()
		xdgConfigHome = filepath.Join(home, ".config") // override for mac
	} else {
		xdgConfigHome = xdg.ConfigHome
	}
	return filepath.Join(xdgConfigHome, "oleg")
}

// SaveSession persists the server, username and token to file. Only these
// keys are written, so a password given on the command line never lands on disk.
func SaveSession(file, username, token string) error {
	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	viper.Set("username", username)
	viper.Set("token", token)

	v := viper.New()
	v.Set("server", viper.GetString("server"))
	v.Set("username", username)
	v.Set("token", token)
	if err := v.WriteConfigAs(file); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Chmod(file, 0o600)
}
