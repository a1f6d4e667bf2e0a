package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Still-River/river/internal/client"
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	APIURL      string
	Journal     string
	Session     string
	SessionName string
	LocalDB     string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Work through a River journal from the terminal",
		Long: `Work through a River journal from the terminal.

With --session the journal is saved to your account; without it progress
is kept in a local SQLite file.

Example:
  journal answer strongMemories "Helping my sister move apartments."
  journal goto 2
  journal complete`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", envOr("RIVER_API_URL", "http://localhost:8080"), "River API base URL")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "values-journal", "journal slug or id")
	cmd.PersistentFlags().StringVar(&opts.Session, "session", os.Getenv("RIVER_SESSION"), "session cookie value of a signed-in browser")
	cmd.PersistentFlags().StringVar(&opts.SessionName, "session-name", "river_session", "session cookie name")
	cmd.PersistentFlags().StringVar(&opts.LocalDB, "local-db", "river-journal.db", "SQLite file for anonymous progress")

	cmd.AddCommand(
		newShowCommand(opts),
		newAnswerCommand(opts),
		newGotoCommand(opts),
		newSkipCommand(opts),
		newCompleteCommand(opts),
		newWatchCommand(opts),
	)

	return cmd
}

// session is one loaded controller plus what must be closed with it.
type session struct {
	controller *client.Controller
	backend    client.Backend
	user       *client.User
	store      *client.LocalStore
}

func (s *session) Close() {
	s.controller.Close()
	if s.store != nil {
		s.store.Close()
	}
}

func openSession(ctx context.Context, opts *rootOptions) (*session, error) {
	api, err := client.NewAPIClient(opts.APIURL)
	if err != nil {
		return nil, err
	}

	var store *client.LocalStore
	if opts.Session != "" {
		api.SetSession(opts.SessionName, opts.Session)
	} else {
		store, err = client.OpenLocalStore(opts.LocalDB)
		if err != nil {
			return nil, err
		}
	}

	backend, user, err := client.SelectBackend(ctx, api, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	controller := client.NewController(backend, opts.Journal)
	s := &session{controller: controller, backend: backend, user: user, store: store}
	if err := controller.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}
	return s, nil
}

// finish waits for saves and reports the last failure.
func (s *session) finish(w io.Writer) error {
	s.controller.Flush()
	if s.controller.Status() == client.StatusError {
		return fmt.Errorf("save failed: %w", s.controller.Err())
	}
	fmt.Fprintf(w, "Saved (%s).\n", s.backend.Name())
	return nil
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the journal with your answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			printJournal(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func newAnswerCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <prompt-key> <text>...",
		Short: "Write the answer to a prompt",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.controller.UpdateResponse(args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			return s.finish(cmd.OutOrStdout())
		},
	}
}

func newGotoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "goto <step>",
		Short: "Move to a prompt, counting from 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step %q", args[0])
			}

			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			s.controller.GoToStep(step - 1)
			if p := s.controller.CurrentPrompt(); p != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Step %d: %s\n%s\n", s.controller.State().ActiveStep+1, p.Title, p.Question)
			}
			return s.finish(cmd.OutOrStdout())
		},
	}
}

func newSkipCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Leave the journal for later",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			s.controller.Skip()
			fmt.Fprintln(cmd.OutOrStdout(), "Marked as to do.")
			return s.finish(cmd.OutOrStdout())
		},
	}
}

func newCompleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete",
		Short: "Finish the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.controller.Complete() {
				return errors.New("answer every required prompt before completing")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Journal complete.")
			return s.finish(cmd.OutOrStdout())
		},
	}
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print saves made from other tabs and devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Session == "" {
				return errors.New("watch needs --session")
			}

			api, err := client.NewAPIClient(opts.APIURL)
			if err != nil {
				return err
			}
			api.SetSession(opts.SessionName, opts.Session)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s, press Ctrl+C to stop.\n", opts.Journal)
			err = api.WatchProgress(ctx, opts.Journal, func(event client.ProgressEvent) {
				updated := "-"
				if event.State.LastUpdated != nil {
					updated = *event.State.LastUpdated
				}
				fmt.Fprintf(out, "[%s] %s step=%d todo=%t answers=%d\n",
					updated, event.JournalSlug, event.State.ActiveStep+1, event.State.Todo, countAnswered(event.Responses))
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func printJournal(w io.Writer, s *session) {
	journal := s.controller.Journal()
	state := s.controller.State()

	owner := "local"
	if s.user != nil {
		owner = s.user.Email
	}
	fmt.Fprintf(w, "%s (%s)\n", journal.Title, owner)
	if state.Todo {
		fmt.Fprintln(w, "Status: to do")
	}
	if state.LastUpdated != nil {
		fmt.Fprintf(w, "Last updated: %s\n", *state.LastUpdated)
	}
	fmt.Fprintln(w)

	for i, p := range journal.Prompts {
		marker := " "
		if i == state.ActiveStep {
			marker = ">"
		}
		label := p.Title
		if p.Optional {
			label += " (optional)"
		}
		fmt.Fprintf(w, "%s %d. %s [%s]\n", marker, i+1, label, p.Key)
		if answer := strings.TrimSpace(state.Responses[p.Key]); answer != "" {
			fmt.Fprintf(w, "     %s\n", answer)
		}
	}

	fmt.Fprintln(w)
	if s.controller.CanComplete() {
		fmt.Fprintln(w, "Ready to complete.")
	}
}

func countAnswered(responses map[string]string) int {
	n := 0
	for _, v := range responses {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
