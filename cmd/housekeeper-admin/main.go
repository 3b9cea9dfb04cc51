// Package main provides housekeeper-admin, the offline maintenance CLI for a
// house-keeper data directory.
//
// It works directly on the files. Document locks are held per process, so
// stop the server before running commands that write (init, user, gc-images).
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/storage"
)

const (
	envPrefix      = "HOUSE_KEEPER"
	configFileName = "housekeeper"
	configFileType = "yaml"

	cfgKeyDataDir   = "data_dir"
	cfgKeyBackupDir = "backup_dir"
	cfgKeyBackupGit = "backup_git"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the resolved configuration and the lazily opened services.
type app struct {
	v          *viper.Viper
	configFile string

	cfg    *storage.ServerConfig
	store  *docstore.Store
	users  *storage.UserService
	houses *storage.HouseService
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "housekeeper-admin",
		Short: "Maintain a house-keeper data directory",
		Long: `housekeeper-admin manages users, backups and images of a house-keeper
data directory without going through the HTTP server.

Settings come from flags, HOUSE_KEEPER_* environment variables and an
optional housekeeper.yaml in the current directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: ./housekeeper.yaml)")
	pf.String("data-dir", "./data", "data directory")
	pf.String("backup-dir", "", "backup directory (default: <data-dir>/../backup)")
	pf.Bool("backup-git", false, "commit backups into a git repository in the backup directory")
	_ = a.v.BindPFlag(cfgKeyDataDir, pf.Lookup("data-dir"))
	_ = a.v.BindPFlag(cfgKeyBackupDir, pf.Lookup("backup-dir"))
	_ = a.v.BindPFlag(cfgKeyBackupGit, pf.Lookup("backup-git"))

	root.AddCommand(
		a.initCmd(),
		a.userCmd(),
		a.backupCmd(),
		a.schemaCmd(),
		a.exportCmd(),
		a.gcImagesCmd(),
	)
	return root
}

// loadConfig reads housekeeper.yaml and the environment. A missing config
// file is not an error unless it was named explicitly.
func (a *app) loadConfig() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
	} else {
		a.v.SetConfigName(configFileName)
		a.v.SetConfigType(configFileType)
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) dataDir() string {
	return a.v.GetString(cfgKeyDataDir)
}

func (a *app) backupDir() string {
	if d := a.v.GetString(cfgKeyBackupDir); d != "" {
		return d
	}
	return filepath.Join(filepath.Dir(filepath.Clean(a.dataDir())), "backup")
}

// open loads server_config.json and the user and house collections,
// creating them if needed.
func (a *app) open() error {
	if a.store != nil {
		return nil
	}
	dir := a.dataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg, err := storage.LoadServerConfig(dir)
	if err != nil {
		return fmt.Errorf("failed to load server_config.json: %w", err)
	}
	store, err := docstore.New(dir)
	if err != nil {
		return err
	}
	users, err := storage.NewUserService(store, cfg.Quotas.MaxUsers)
	if err != nil {
		return err
	}
	houses, err := storage.NewHouseService(store, users)
	if err != nil {
		return err
	}
	a.cfg, a.store, a.users, a.houses = cfg, store, users, houses
	return nil
}
