package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"horizon/internal/chat"
	"horizon/internal/config"
	"horizon/internal/payload"
)

func newChatCommand() *cobra.Command {
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to your research assistant",
		Long: "Start an interactive chat, or send a single message and exit.\n" +
			"Inside the chat, /new starts a fresh conversation and /tokens shows the context size.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireLogin(); err != nil {
				return err
			}

			if useTUI && isTTY() {
				return runChatTUI(a)
			}

			repl, err := newChatREPL(a)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return repl.oneShot(strings.Join(args, " "))
			}
			return repl.run()
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "full-screen chat interface")
	return cmd
}

// chatREPL is the line-based chat loop. Streaming output is printed as it
// arrives; the final reply is re-rendered as markdown only in one-shot mode
// where the stream was suppressed.
type chatREPL struct {
	app      *app
	session  *chat.Session
	markdown *markdownRenderer

	printedStream bool
}

func newChatREPL(a *app) (*chatREPL, error) {
	markdown, err := newMarkdownRenderer(!isTTY())
	if err != nil {
		return nil, err
	}
	r := &chatREPL{app: a, markdown: markdown}
	r.session = chat.NewSession(
		chat.NewTransportStreamer(a.transport),
		chat.WithLogger(a.logger),
		chat.WithEventObserver(r.onEvent),
	)
	return r, nil
}

func (r *chatREPL) onEvent(event chat.StreamEvent) {
	switch event.Type {
	case chat.EventStatus:
		fmt.Printf("%s\n", gray("· "+event.Message))
	case chat.EventToolStart:
		fmt.Printf("%s\n", cyan("⚙ "+event.Tool))
	case chat.EventToolProgress:
		fmt.Printf("%s\n", gray("  "+event.Progress))
	case chat.EventTextDelta:
		fmt.Print(event.Text)
		r.printedStream = true
	case chat.EventComplete, chat.EventError, chat.EventCancelled:
		if r.printedStream {
			fmt.Println()
		}
	}
}

func (r *chatREPL) run() error {
	fmt.Printf("%s\n%s\n\n", bold("Knowledge Horizon"), gray("Ask about your research streams. Type 'exit' to leave."))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          blue("> "),
		HistoryFile:     filepath.Join(config.Dir(), "history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           readline.NewCancelableStdin(os.Stdin),
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				fmt.Println(gray("Goodbye."))
				return nil
			}
			continue
		} else if err == io.EOF {
			fmt.Println(gray("Goodbye."))
			return nil
		}

		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit" || input == "q":
			fmt.Println(gray("Goodbye."))
			return nil
		case input == "/new":
			r.session = chat.NewSession(
				chat.NewTransportStreamer(r.app.transport),
				chat.WithLogger(r.app.logger),
				chat.WithEventObserver(r.onEvent),
			)
			fmt.Println(gray("Started a new conversation."))
			continue
		case input == "/tokens":
			fmt.Printf("%s\n", gray(fmt.Sprintf("≈ %d tokens in this conversation", chat.EstimateTokens(r.session.Messages()))))
			continue
		case strings.HasPrefix(input, "/"):
			fmt.Printf("%s\n", yellow("Unknown command "+input))
			continue
		}

		if err := r.turn(input); err != nil {
			fmt.Printf("%s\n", red(err.Error()))
		}
		fmt.Println()
	}
}

func (r *chatREPL) oneShot(message string) error {
	if err := r.turn(message); err != nil {
		return err
	}
	messages := r.session.Messages()
	if len(messages) == 0 {
		return nil
	}
	last := messages[len(messages)-1]
	if last.Role == chat.RoleAssistant && !r.printedStream {
		fmt.Println(r.markdown.render(last.Content))
	}
	return nil
}

// turn runs one Send with Ctrl+C wired to cancellation: the first interrupt
// aborts the stream, committing any partial reply.
func (r *chatREPL) turn(message string) error {
	r.printedStream = false

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			fmt.Printf("\n%s\n", yellow("Cancelling..."))
			r.session.Cancel()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		signal.Stop(sigs)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.app.cfg.StreamTimeout)
	defer cancel()
	if err := r.session.Send(ctx, message); err != nil {
		return err
	}
	r.afterTurn()
	return nil
}

// afterTurn surfaces the structured parts of the reply: payload cards with
// their confirm prompts, and suggested follow-ups.
func (r *chatREPL) afterTurn() {
	messages := r.session.Messages()
	if len(messages) == 0 {
		return
	}
	last := messages[len(messages)-1]
	if last.Role != chat.RoleAssistant || last.Extras == nil {
		return
	}

	if last.Extras.Cancelled {
		fmt.Printf("%s\n", yellow("(cancelled, partial reply kept)"))
	}

	if len(last.Extras.Payload) > 0 {
		r.presentPayload(last.Extras.PayloadType, last.Extras.Payload)
	}

	for _, action := range last.Extras.SuggestedActions {
		fmt.Printf("%s\n", gray("→ "+action.Label))
	}
}

func (r *chatREPL) presentPayload(payloadType string, raw []byte) {
	ctx := context.Background()
	card := r.app.registry.Render(ctx, payloadType, raw)

	fmt.Printf("\n%s\n", bold(card.Title))
	for _, line := range strings.Split(card.Body, "\n") {
		fmt.Printf("  %s\n", line)
	}
	if card.Confirm == "" {
		return
	}

	handler, ok := r.app.registry.Handler(payloadType)
	if !ok {
		return
	}
	actionable, ok := handler.(payload.Actionable)
	if !ok {
		return
	}

	prompt := promptui.Prompt{Label: card.Confirm, IsConfirm: true}
	if _, err := prompt.Run(); err != nil {
		result, err := actionable.Reject(ctx, raw)
		if err == nil && result != "" {
			fmt.Printf("%s\n", gray(result))
		}
		return
	}
	result, err := actionable.Accept(ctx, raw)
	if err != nil {
		fmt.Printf("%s\n", red("apply failed: "+err.Error()))
		return
	}
	fmt.Printf("%s %s\n", green("✓"), result)
}
