package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bmsync/internal/app"
	"bmsync/internal/backup"
	"bmsync/internal/config"
	"bmsync/internal/encryption"
	"bmsync/internal/store"
	"bmsync/internal/sync"
	"bmsync/internal/watch"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// app.Close(). operation identifies the CLI command being run (e.g.
// "Sync", "BackupCreate").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase prompts on the terminal without echoing.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:   "bmsync",
	Short: "Cross-browser bookmark synchronizer",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Home Dir: %s\n", cfg.HomeDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Home Dir:    %s\n", cfg.HomeDir)
		fmt.Printf("State Path:  %s\n", cfg.StatePath)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Backup Dir:  %s\n", cfg.Backup.OutputDir)
		if len(cfg.Stores.Enabled) > 0 {
			fmt.Printf("Stores:      %v\n", cfg.Stores.Enabled)
		} else {
			fmt.Printf("Stores:      all detected\n")
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize bookmarks across all detected browsers",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		verbose, _ := cmd.Flags().GetBool("verbose")
		full, _ := cmd.Flags().GetBool("full")

		a, err := newApp("Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine.Sync(sync.Options{
			DryRun:      dryRun,
			Verbose:     verbose,
			Incremental: !full,
		})
		if err != nil {
			if errors.Is(err, sync.ErrNoStoresDetected) {
				return fmt.Errorf("no browser bookmark stores found on this machine")
			}
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Print(report.Summary())
		return nil
	},
}

// validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every store for readability and consistency",
	RunE: func(cmd *cobra.Command, args []string) error {
		detailed, _ := cmd.Flags().GetBool("detailed")

		a, err := newApp("Validate")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine.Validate(detailed)
		if err != nil {
			return err
		}

		fmt.Print(report.Summary())
		if len(report.Issues) > 0 {
			return fmt.Errorf("%d store(s) failed validation", len(report.Issues))
		}
		fmt.Println("All stores valid.")
		return nil
	},
}

// browsers command
var browsersCmd = &cobra.Command{
	Use:   "browsers",
	Short: "List supported browsers and whether they were detected",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListStores")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, d := range a.Engine.ListStores() {
			if d.Found {
				fmt.Printf("%-10s %s\n", d.Store.DisplayName(), d.Path)
			} else {
				fmt.Printf("%-10s not found\n", d.Store.DisplayName())
			}
		}
		return nil
	},
}

// cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove empty folders and merge duplicate sibling folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("Cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine.Cleanup(sync.Options{DryRun: dryRun})
		if err != nil {
			return err
		}

		fmt.Print(report.Summary())
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage master backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Archive every detected store",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp("BackupCreate")
		if err != nil {
			return err
		}
		defer a.Close()

		manifest, manifestPath, err := a.Archiver.Create(a.Adapters, encrypt || a.Cfg.Backup.Encrypt)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup %s created\n", manifest.ID)
		for _, e := range manifest.Entries {
			fmt.Printf("  %-10s %s (%d bytes)\n", e.Store.DisplayName(), e.File, e.Size)
		}
		fmt.Printf("Manifest: %s\n", manifestPath)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore MANIFEST STORE",
	Short: "Restore one store from a backup manifest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		manifestPath := args[0]
		id, err := store.Parse(args[1])
		if err != nil {
			return err
		}

		a, err := newApp("BackupRestore")
		if err != nil {
			return err
		}
		defer a.Close()

		manifest, err := backup.LoadManifest(manifestPath)
		if err != nil {
			return err
		}

		passphrase := ""
		for _, e := range manifest.Entries {
			if e.Store == id && e.Encrypted {
				passphrase, err = readPassphrase("Passphrase: ")
				if err != nil {
					return err
				}
				break
			}
		}

		guard, err := store.RestoreGuard(id, store.Env{
			Scratch: a.Cfg.ScratchDir,
			Logger:  a.Logger(),
		})
		if err != nil {
			return err
		}

		if err := a.Archiver.Restore(manifestPath, id, guard, passphrase); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %s from backup %s\n", id.DisplayName(), manifest.ID)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the backup encryption key pair",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a passphrase-protected key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("KeysInit")
		if err != nil {
			return err
		}
		defer a.Close()

		enc := encryption.NewAgeEncryptor(a.Cfg.Encryption)
		if enc.IsConfigured() {
			return fmt.Errorf("key pair already exists, refusing to overwrite")
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating key pair: %w", err)
		}

		fmt.Printf("Key pair written to %s\n", a.Cfg.Encryption.PublicKeyPath)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export merged bookmarks as Netscape HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("Export")
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.Engine.ExportHTML(output)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported %d bookmark(s) to %s\n", count, output)
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a Netscape HTML bookmark file and sync it everywhere",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		a, err := newApp("Import")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Engine.ImportHTML(args[0], sync.Options{DryRun: dryRun})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Print(report.Summary())
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously sync on store changes and a periodic interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetInt("interval")
		debounce, _ := cmd.Flags().GetInt("debounce")

		a, err := newApp("Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		if interval == 0 {
			interval = a.Cfg.Watch.IntervalSeconds
		}
		if debounce == 0 {
			debounce = a.Cfg.Watch.DebounceSeconds
		}

		var paths []string
		for _, d := range a.Engine.ListStores() {
			if d.Found {
				paths = append(paths, d.Path)
			}
		}
		if len(paths) == 0 {
			return fmt.Errorf("no browser bookmark stores found on this machine")
		}

		w := watch.New(a.Engine, paths,
			time.Duration(interval)*time.Second,
			time.Duration(debounce)*time.Second,
			a.Logger())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %d store(s), syncing every %ds. Ctrl-C to stop.\n", len(paths), interval)
		return w.Run(ctx)
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	syncCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	syncCmd.Flags().BoolP("verbose", "v", false, "Log per-bookmark detail")
	syncCmd.Flags().Bool("full", false, "Ignore saved state and write every store")
	rootCmd.AddCommand(syncCmd)

	validateCmd.Flags().Bool("detailed", false, "Report duplicates and folder counts per store")
	rootCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(browsersCmd)

	cleanupCmd.Flags().Bool("dry-run", false, "Report redundant folders without writing")
	rootCmd.AddCommand(cleanupCmd)

	backupCreateCmd.Flags().Bool("encrypt", false, "Encrypt archived stores with the configured key")
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)

	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)

	exportCmd.Flags().StringP("output", "o", "bookmarks.html", "Output file")
	rootCmd.AddCommand(exportCmd)

	importCmd.Flags().Bool("dry-run", false, "Parse and merge without writing")
	rootCmd.AddCommand(importCmd)

	watchCmd.Flags().Int("interval", 0, "Periodic sync interval in seconds")
	watchCmd.Flags().Int("debounce", 0, "Quiet period after a file change in seconds")
	rootCmd.AddCommand(watchCmd)
}
