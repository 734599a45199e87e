package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newChatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Browse past conversations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			conversations, err := a.client.Conversations(ctx)
			if err != nil {
				return err
			}
			if len(conversations) == 0 {
				fmt.Println(gray("No conversations yet. Start one with `horizon chat`."))
				return nil
			}
			fmt.Printf("%s\n", bold(fmt.Sprintf("%-5s %-48s %-9s %s", "ID", "TITLE", "MESSAGES", "UPDATED")))
			for _, conv := range conversations {
				fmt.Printf("%-5d %-48s %-9d %s\n", conv.ID, conv.Title, conv.MessageCount, conv.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one conversation record",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			conv, err := a.client.Conversation(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%s (#%d)\n", bold(conv.Title), conv.ID)
			fmt.Printf("  messages: %d\n", conv.MessageCount)
			fmt.Printf("  started:  %s\n", conv.CreatedAt.Format("2006-01-02 15:04"))
			fmt.Printf("  updated:  %s\n", conv.UpdatedAt.Format("2006-01-02 15:04"))
			return nil
		}),
	})
	return cmd
}
