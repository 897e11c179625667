// Command donormatchctl runs maintenance tasks against the donormatch
// database.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"donormatch/pkg/maintenance"
	"donormatch/pkg/store"
	"donormatch/pkg/submission"
)

var (
	databaseURL string
	openStore   = defaultOpenStore
	now         = time.Now
)

var rootCmd = &cobra.Command{
	Use:           "donormatchctl",
	Short:         "Maintenance tasks for donormatch",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-states",
	Short: "Compare opportunity state snapshots with their event logs",
	Long: `Replays every donor/opportunity event log and reports snapshots that
disagree with it. Pass --apply to rewrite the drifted snapshots.`,
	RunE: runReconcile,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild-profiles",
	Short: "Recompute every donor's vision and board from the chat log",
	RunE:  runRebuildProfiles,
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Give a user the admin role",
	RunE:  runPromote,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the submission signal extractor on text and print JSON",
	RunE:  runExtract,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (or set DATABASE_URL)")

	reconcileCmd.Flags().Bool("apply", false, "rewrite drifted snapshots")
	promoteCmd.Flags().String("email", "", "email of the user to promote")
	_ = promoteCmd.MarkFlagRequired("email")
	extractCmd.Flags().String("summary", "", "submission summary")
	extractCmd.Flags().String("title", "", "submission title")
	extractCmd.Flags().String("org", "", "organization name")
	extractCmd.Flags().Int64("amount", 0, "explicit amount requested")

	rootCmd.AddCommand(reconcileCmd, rebuildCmd, promoteCmd, extractCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultOpenStore() (store.Store, func() error, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		return nil, nil, errors.New("database URL required (--database-url or DATABASE_URL)")
	}
	st, err := store.NewGormStore(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, st.Close, nil
}

func withStore(fn func(store.Store) error) error {
	st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(st)
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	apply, _ := cmd.Flags().GetBool("apply")
	return withStore(func(st store.Store) error {
		drifts, err := maintenance.ReconcileStates(st, apply, now())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, d := range drifts {
			fmt.Fprintf(out, "%s %s: %s -> %s\n", d.DonorID, d.OpportunityKey, d.Stored, d.Derived)
		}
		verb := "found"
		if apply {
			verb = "fixed"
		}
		fmt.Fprintf(out, "%s %d drifted snapshot(s)\n", verb, len(drifts))
		return nil
	})
}

func runRebuildProfiles(cmd *cobra.Command, _ []string) error {
	return withStore(func(st store.Store) error {
		n, err := maintenance.RebuildProfiles(st, now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %d profile(s)\n", n)
		return nil
	})
}

func runPromote(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	return withStore(func(st store.Store) error {
		user, err := maintenance.PromoteAdmin(st, email, now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
		return nil
	})
}

func runExtract(cmd *cobra.Command, _ []string) error {
	summary, _ := cmd.Flags().GetString("summary")
	if strings.TrimSpace(summary) == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		summary = string(data)
	}
	title, _ := cmd.Flags().GetString("title")
	org, _ := cmd.Flags().GetString("org")
	in := submission.Input{Title: title, Summary: summary, OrgName: org}
	if amount, _ := cmd.Flags().GetInt64("amount"); amount > 0 {
		in.AmountRequested = &amount
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(submission.Extract(in))
}
