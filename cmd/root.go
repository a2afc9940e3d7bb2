package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/release"
	"github.com/joescharf/releasy/internal/store"
	"github.com/joescharf/releasy/internal/vcs"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
	project string
)

var rootCmd = &cobra.Command{
	Use:   "releasy",
	Short: "Package a project into OS X and Windows release artifacts",
	Long: `releasy builds distributable artifacts from a project described by
releasy.yaml (or releasy.toml): an OS X .app bundle assembled from a Gosu
wrapper, and Windows installers, folders and standalone executables packed
with ocra and Inno Setup. Only out-of-date artifacts are rebuilt.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "C", ".", "Project directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/releasy/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(filepath.Join(home, ".config", "releasy"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RELEASY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "releasy")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "releasy.db"))
	viper.SetDefault("output_path", "pkg")
	viper.SetDefault("tools.sevenzip", "7z")
	viper.SetDefault("tools.tar", "tar")
	viper.SetDefault("tools.ocra", "ocra")
	viper.SetDefault("osx.extractor", "7z")
	viper.SetDefault("osx.exclude_encoding", false)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily, only by commands that need it.
}

// settings builds release settings from the effective configuration.
func settings() release.Settings {
	return release.Settings{
		SevenZip:        viper.GetString("tools.sevenzip"),
		Tar:             viper.GetString("tools.tar"),
		Ocra:            viper.GetString("tools.ocra"),
		Extractor:       viper.GetString("osx.extractor"),
		ExcludeEncoding: viper.GetBool("osx.exclude_encoding"),
		OutputPath:      viper.GetString("output_path"),
	}
}

// openSession loads the project in dir with output going to u.
func openSession(dir string, u *output.UI) (*release.Session, error) {
	return release.Open(dir, settings(), u, vcs.NewClient())
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
