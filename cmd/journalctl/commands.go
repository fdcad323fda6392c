package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reflection-journal/internal/domain"
	"reflection-journal/internal/usecase"
)

type journalService interface {
	ListEntries(ctx context.Context, owner string, f usecase.EntryFilter) ([]domain.Entry, error)
	CountEntries(ctx context.Context, owner string) (int, error)
	DeleteEntry(ctx context.Context, owner, id string) error
	ListWeeklySummaries(ctx context.Context, owner string) ([]domain.WeeklySummary, error)
	RecomputeWeekly(ctx context.Context, owner string) (int, error)
	Ask(ctx context.Context, owner, question string) (string, error)
}

type openFunc func(ctx context.Context) (journalService, func() error, error)

func newRootCmd(open openFunc) *cobra.Command {
	var owner string
	root := &cobra.Command{
		Use:           "journalctl",
		Short:         "Administer reflection journal entries and weekly summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&owner, "owner", "o", "", "Owner email (required)")

	// withService opens the service for one command and closes it afterwards.
	withService := func(run func(cmd *cobra.Command, svc journalService, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return errors.New("--owner required")
			}
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()
			return run(cmd, svc, args)
		}
	}

	entriesCmd := &cobra.Command{Use: "entries", Short: "Journal entry operations"}

	var filter usecase.EntryFilter
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		RunE: withService(func(cmd *cobra.Command, svc journalService, _ []string) error {
			entries, err := svc.ListEntries(cmd.Context(), owner, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		}),
	}
	listCmd.Flags().StringVar(&filter.Emotion, "emotion", "", "Only entries with this emotion")
	listCmd.Flags().StringVar(&filter.Person, "person", "", "Only entries mentioning this person")
	listCmd.Flags().StringVar(&filter.Topic, "topic", "", "Only entries about this topic")
	listCmd.Flags().StringVar(&filter.From, "from", "", "First day, YYYY-MM-DD")
	listCmd.Flags().StringVar(&filter.To, "to", "", "Last day, YYYY-MM-DD")
	entriesCmd.AddCommand(listCmd)

	entriesCmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Count entries",
		RunE: withService(func(cmd *cobra.Command, svc journalService, _ []string) error {
			n, err := svc.CountEntries(cmd.Context(), owner)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		}),
	})

	entriesCmd.AddCommand(&cobra.Command{
		Use:   "delete ENTRY_ID",
		Short: "Delete an entry and refresh its week",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc journalService, args []string) error {
			if err := svc.DeleteEntry(cmd.Context(), owner, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		}),
	})
	root.AddCommand(entriesCmd)

	weeklyCmd := &cobra.Command{Use: "weekly", Short: "Weekly summary operations"}
	weeklyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List weekly summaries, latest week first",
		RunE: withService(func(cmd *cobra.Command, svc journalService, _ []string) error {
			rows, err := svc.ListWeeklySummaries(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd, rows)
		}),
	})
	weeklyCmd.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Rebuild every weekly summary from the entries",
		RunE: withService(func(cmd *cobra.Command, svc journalService, _ []string) error {
			n, err := svc.RecomputeWeekly(cmd.Context(), owner)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d weeks\n", n)
			return err
		}),
	})
	root.AddCommand(weeklyCmd)

	root.AddCommand(&cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a question about the owner's entries",
		Args:  cobra.ExactArgs(1),
		RunE: withService(func(cmd *cobra.Command, svc journalService, args []string) error {
			answer, err := svc.Ask(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
			return err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "questions",
		Short: "Print suggested questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, q := range usecase.SuggestedQuestions() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), q); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
