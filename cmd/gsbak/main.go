package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gsbak/internal/app"
	"gsbak/internal/config"
	"gsbak/internal/gs"
	"gsbak/internal/identifier"
	"gsbak/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a GSBakApp. The caller must defer
// a.Close(). operation identifies the CLI command being run (e.g. "Backup");
// parameters carry its arguments for the history log.
func newApp(operation, parameters string) (*app.GSBakApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if verbose {
		cfg.Log.Verbose = true
	}

	a, err := app.NewGSBakApp(cfg, operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readSecret prompts on stderr and reads a line without echo when stdin is a
// terminal, or a plain line otherwise (for scripted use).
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printRecord(rec *model.AccountRecord) {
	fmt.Printf("ID:             %s\n", rec.ID)
	fmt.Printf("Label:          %s\n", rec.Label)
	fmt.Printf("Player ID:      %s\n", rec.PlayerID)
	fmt.Printf("Advertising ID: %s\n", rec.AdvertisingID)
	fmt.Printf("Device token:   %s\n", rec.DeviceToken)
	fmt.Printf("App set ID:     %s\n", rec.AppSetID)
	fmt.Printf("SSAID:          %s\n", rec.SSAID)
	fmt.Printf("Backup dir:     %s\n", rec.BackupDir)
	fmt.Printf("Owner:          %s:%s (cache %s, prefs %s)\n",
		rec.DataOwner, rec.DataGroup, rec.CacheMode, rec.PrefsMode)
	if rec.ServiceEmail != "" {
		fmt.Printf("Service email:  %s\n", rec.ServiceEmail)
	}
	fmt.Printf("Created:        %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if !rec.LastRestoredAt.IsZero() {
		marker := ""
		if rec.LastRestored {
			marker = "  [active]"
		}
		fmt.Printf("Last restored:  %s%s\n", rec.LastRestoredAt.Format("2006-01-02 15:04:05"), marker)
	}
}

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gsbak",
	Short: "Per-account game state backup and restore for Android",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration, database and encryption keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		passphrase := ""
		if cfg.Encryption.Type == "age" || cfg.Encryption.Type == "" {
			passphrase, err = readSecret("Passphrase for the encryption key: ")
			if err != nil {
				return err
			}
			confirm, err := readSecret("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := app.Init(defaults["config_path"], cfg, passphrase); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup LABEL",
	Short: "Capture the current account state under a label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("Backup", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Backup(cmd.Context(), args[0], force)
		if err != nil {
			a.MarkFailed()
			return fmt.Errorf("backup failed: %w", err)
		}

		switch res.Outcome {
		case gs.OutcomeDuplicate:
			a.MarkFailed()
			return fmt.Errorf("account already backed up as %q (use --force to replace)", res.Conflict)
		case gs.OutcomePartial:
			fmt.Printf("Backed up %q with missing identifiers: %s\n",
				res.Record.Label, strings.Join(res.Missing, ", "))
		default:
			fmt.Printf("Backed up %q\n", res.Record.Label)
		}
		fmt.Printf("Record ID: %s\n", res.Record.ID)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore ID|LABEL",
	Short: "Put a record's captured state back onto the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Restore", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Restore(cmd.Context(), args[0])
		if err != nil {
			a.MarkFailed()
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored %q (%s)\n", rec.Label, rec.PlayerID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all account records",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List", "")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.List()
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No account records.")
			return nil
		}

		for _, rec := range recs {
			marker := " "
			if rec.LastRestored {
				marker = "*"
			}
			ssaid := rec.SSAID
			if ssaid == identifier.NotPresent {
				ssaid = "-"
			}
			fmt.Printf("%s %-36s  %-20s  %-24s  %s\n",
				marker, rec.ID, rec.Label, rec.PlayerID, ssaid)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID|LABEL",
	Short: "Show one account record in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Show", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Show(args[0])
		if err != nil {
			return err
		}
		printRecord(rec)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit ID|LABEL",
	Short: "Update a record's label or linked-service credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Edit", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		var fields gs.EditFields
		if cmd.Flags().Changed("label") {
			label, _ := cmd.Flags().GetString("label")
			fields.Label = &label
		}
		if cmd.Flags().Changed("email") {
			email, _ := cmd.Flags().GetString("email")
			fields.ServiceEmail = &email
		}
		if prompt, _ := cmd.Flags().GetBool("password"); prompt {
			password, err := readSecret("Service password: ")
			if err != nil {
				return err
			}
			fields.ServicePassword = &password
		}
		if fields.Label == nil && fields.ServiceEmail == nil && fields.ServicePassword == nil {
			return fmt.Errorf("nothing to edit: pass --label, --email or --password")
		}

		rec, err := a.Edit(args[0], fields)
		if err != nil {
			a.MarkFailed()
			return err
		}
		fmt.Printf("Updated %q\n", rec.Label)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID|LABEL",
	Short: "Delete a record and its on-device backup files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keepFiles, _ := cmd.Flags().GetBool("keep-files")

		a, err := newApp("Delete", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(cmd.Context(), args[0], keepFiles); err != nil {
			a.MarkFailed()
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export ID|LABEL DEST",
	Short: "Pull a record's backup tree into a host directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Export", strings.Join(args, " "))
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Export(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Printf("Exported %q to %s\n", rec.Label, args[1])
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [ID|LABEL ...]",
	Short: "Archive records and upload them to the vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Sync", strings.Join(args, " "))
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Sync(cmd.Context(), args)
		if err != nil {
			a.MarkFailed()
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Staged %d, uploaded %d archive(s)\n", res.Staged, res.Uploaded)
		if res.Failed > 0 {
			a.MarkFailed()
			return fmt.Errorf("%d upload(s) failed and stay spooled", res.Failed)
		}
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch NAME",
	Short: "Download an archive from the vault and extract it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")

		a, err := newApp("Fetch", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase := ""
		if strings.HasSuffix(args[0], ".age") {
			passphrase, err = readSecret("Passphrase for the encryption key: ")
			if err != nil {
				return err
			}
		}

		if err := a.Fetch(cmd.Context(), args[0], outDir, passphrase); err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		fmt.Printf("Extracted %s to %s\n", args[0], outDir)
		return nil
	},
}

// ssaid command
var ssaidCmd = &cobra.Command{
	Use:   "ssaid",
	Short: "Inspect or set the target app's Android ID",
}

var ssaidGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Read the Android ID stored for the target app",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SSAIDGet", "")
		if err != nil {
			return err
		}
		defer a.Close()

		value, err := a.CurrentSSAID(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var ssaidSetCmd = &cobra.Command{
	Use:   "set VALUE",
	Short: "Write an Android ID for the target app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SSAIDSet", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetSSAID(cmd.Context(), args[0]); err != nil {
			a.MarkFailed()
			return err
		}
		fmt.Println("Android ID updated. Reboot the device for the change to take effect.")
		return nil
	},
}

// adid command
var adidCmd = &cobra.Command{
	Use:   "adid",
	Short: "Manage the runtime interceptor's identifier cache",
}

var adidShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the staged interceptor entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AdCacheShow", "")
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.AdCacheShow(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("App set ID: %s\n", entry.AppSetID)
		fmt.Printf("SSAID:      %s\n", entry.SSAID)
		fmt.Printf("Label:      %s\n", entry.Label)
		if !entry.Timestamp.IsZero() {
			fmt.Printf("Staged at:  %s\n", entry.Timestamp.UTC().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var adidWriteCmd = &cobra.Command{
	Use:   "write ID|LABEL",
	Short: "Stage a record's identifiers for the interceptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AdCacheWrite", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AdCacheWrite(cmd.Context(), args[0]); err != nil {
			a.MarkFailed()
			return err
		}
		fmt.Println("Interceptor cache written.")
		return nil
	},
}

var adidInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Remove the staged interceptor entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AdCacheInvalidate", "")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AdCacheInvalidate(cmd.Context()); err != nil {
			a.MarkFailed()
			return err
		}
		fmt.Println("Interceptor cache removed.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the device and report the tool's working state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status", "")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		if report.RootAccess {
			fmt.Println("Root access:   ok")
		} else {
			fmt.Printf("Root access:   UNAVAILABLE (%s)\n", report.RootError)
		}
		if report.Store != nil {
			fmt.Printf("SSAID store:   %s encoding", report.Store.Encoding)
			if report.Store.Encoding == "binary" && !report.Store.ConvertersPresent {
				fmt.Print(", format converters MISSING")
			}
			if report.Store.SQLStorePresent {
				fmt.Print(", settings database present")
			}
			fmt.Println()
		}
		fmt.Printf("Records:       %d\n", report.RecordCount)
		fmt.Printf("Spool:         %d pending archive(s), %d bytes\n", report.SpoolCount, report.SpoolSize)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded CLI operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History", "")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if !op.FinishedAt.IsZero() {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror every log line to stderr")
	backupCmd.Flags().BoolP("force", "f", false, "Replace an existing record for the same account")
	editCmd.Flags().String("label", "", "New label")
	editCmd.Flags().String("email", "", "Linked-service email")
	editCmd.Flags().Bool("password", false, "Prompt for a linked-service password")
	deleteCmd.Flags().Bool("keep-files", false, "Keep the on-device backup files")
	fetchCmd.Flags().StringP("out", "o", ".", "Directory to extract into")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	ssaidCmd.AddCommand(ssaidGetCmd)
	ssaidCmd.AddCommand(ssaidSetCmd)

	adidCmd.AddCommand(adidShowCmd)
	adidCmd.AddCommand(adidWriteCmd)
	adidCmd.AddCommand(adidInvalidateCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(ssaidCmd)
	rootCmd.AddCommand(adidCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}
