package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"horizon/internal/api"
)

func newStreamsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "streams",
		Aliases: []string{"stream"},
		Short:   "Manage research streams",
	}
	cmd.AddCommand(newStreamsListCommand())
	cmd.AddCommand(newStreamsShowCommand())
	cmd.AddCommand(newStreamsCreateCommand())
	cmd.AddCommand(newStreamsEditCommand())
	cmd.AddCommand(newStreamsArchiveCommand())
	cmd.AddCommand(newStreamsScheduleCommand())
	return cmd
}

func withClient(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.requireLogin(); err != nil {
			return err
		}
		return run(cmd.Context(), a, args)
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newStreamsListCommand() *cobra.Command {
	var includeArchived bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List research streams",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			streams, err := a.client.ListStreams(ctx, includeArchived)
			if err != nil {
				return err
			}
			if len(streams) == 0 {
				fmt.Println(gray("No research streams yet. Create one with `horizon streams create` or ask the assistant."))
				return nil
			}
			printStreamTable(streams)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&includeArchived, "archived", false, "include archived streams")
	return cmd
}

func printStreamTable(streams []api.ResearchStream) {
	fmt.Printf("%s\n", bold(fmt.Sprintf("%-5s %-24s %-10s %-9s %s", "ID", "NAME", "FREQUENCY", "STATE", "QUERY")))
	for _, s := range streams {
		state := green("active")
		if s.Archived {
			state = gray("archived")
		}
		name := s.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Printf("%-5d %-24s %-10s %-18s %s\n", s.ID, name, s.Frequency, state, gray(s.Query))
	}
}

func newStreamsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one research stream",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			stream, err := a.client.GetStream(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%s (#%d)\n", bold(stream.Name), stream.ID)
			fmt.Printf("  query:     %s\n", stream.Query)
			fmt.Printf("  sources:   %s\n", strings.Join(stream.Sources, ", "))
			fmt.Printf("  frequency: %s\n", stream.Frequency)
			if stream.Archived {
				fmt.Printf("  state:     %s\n", gray("archived"))
			}
			fmt.Printf("  updated:   %s\n", stream.UpdatedAt.Format("2006-01-02 15:04"))
			return nil
		}),
	}
}

func streamDraftFlags(cmd *cobra.Command, draft *api.StreamDraft) {
	cmd.Flags().StringVar(&draft.Name, "name", "", "stream name")
	cmd.Flags().StringVar(&draft.Query, "query", "", "search query")
	cmd.Flags().StringSliceVar(&draft.Sources, "sources", nil, "sources to monitor (e.g. arxiv,pubmed)")
	cmd.Flags().StringVar(&draft.Frequency, "frequency", "", "update frequency (daily, weekly)")
}

func newStreamsCreateCommand() *cobra.Command {
	var draft api.StreamDraft
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a research stream",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			if draft.Name == "" || draft.Query == "" {
				return fmt.Errorf("--name and --query are required")
			}
			if draft.Frequency == "" {
				draft.Frequency = "daily"
			}
			stream, err := a.client.CreateStream(ctx, draft)
			if err != nil {
				return err
			}
			fmt.Printf("%s Created %s (#%d)\n", green("✓"), bold(stream.Name), stream.ID)
			return nil
		}),
	}
	streamDraftFlags(cmd, &draft)
	return cmd
}

func newStreamsEditCommand() *cobra.Command {
	var draft api.StreamDraft
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update a research stream",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			current, err := a.client.GetStream(ctx, id)
			if err != nil {
				return err
			}
			// Unset flags keep their current value.
			if draft.Name == "" {
				draft.Name = current.Name
			}
			if draft.Query == "" {
				draft.Query = current.Query
			}
			if draft.Sources == nil {
				draft.Sources = current.Sources
			}
			if draft.Frequency == "" {
				draft.Frequency = current.Frequency
			}
			stream, err := a.client.UpdateStream(ctx, id, draft)
			if err != nil {
				return err
			}
			fmt.Printf("%s Updated %s (#%d)\n", green("✓"), bold(stream.Name), stream.ID)
			return nil
		}),
	}
	streamDraftFlags(cmd, &draft)
	return cmd
}

func newStreamsArchiveCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a research stream",
		Long:  "Stop monitoring a stream. Its history is kept and it can be restored from the web app.",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			stream, err := a.client.GetStream(ctx, id)
			if err != nil {
				return err
			}
			if !force {
				prompt := promptui.Prompt{
					Label:     fmt.Sprintf("Archive %q", stream.Name),
					IsConfirm: true,
				}
				if _, err := prompt.Run(); err != nil {
					fmt.Println(gray("Aborted."))
					return nil
				}
			}
			if err := a.client.ArchiveStream(ctx, id); err != nil {
				return err
			}
			fmt.Printf("%s Archived %s\n", green("✓"), bold(stream.Name))
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}

func newStreamsScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <id> <cadence>",
		Short: "Set the report cadence for a stream",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cadence := strings.ToLower(args[1])
			if err := a.client.ScheduleReport(ctx, id, cadence); err != nil {
				return err
			}
			fmt.Printf("%s Reports for stream #%d now run %s\n", green("✓"), id, cadence)
			return nil
		}),
	}
}
