package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/chat"
	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/upload"
)

// ensureSession resolves the user's current chat session, creating one
// when nothing is selected.
func ensureSession(ctx context.Context, chats *chat.Store, userID string) (*model.ChatSession, error) {
	current, err := chats.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return current, nil
	}
	snap, err := chats.CreateSession(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return snap.Find(snap.CurrentID), nil
}

// recordUploadResult appends the batch outcome to the current chat
// session: one assistant message per summary, plus a notice when the
// files uploaded but summarization failed.
func recordUploadResult(ctx context.Context, chats *chat.Store, userID string, result *upload.Result) error {
	if len(result.Summaries) == 0 && result.SummarizeErr == nil {
		return nil
	}

	current, err := ensureSession(ctx, chats, userID)
	if err != nil {
		return err
	}

	for _, s := range result.Summaries {
		msg := model.Message{
			Role:      model.RoleAssistant,
			Content:   fmt.Sprintf("Summary of %s:\n\n%s", s.Filename, s.Summary),
			Timestamp: time.Now().Unix(),
		}
		if _, err := chats.AppendMessage(ctx, userID, current.ID, msg); err != nil {
			return err
		}
	}

	if result.SummarizeErr != nil {
		if _, err := chats.AppendMessage(ctx, userID, current.ID, model.Message{
			Role:      model.RoleAssistant,
			Content:   "Your documents were uploaded, but summarization failed. You can still ask questions about them.",
			Timestamp: time.Now().Unix(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func newAskCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about your documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}

			current, err := ensureSession(ctx, a.chats, userID)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			now := time.Now().Unix()
			if _, err := a.chats.AppendMessage(ctx, userID, current.ID, model.Message{
				Role:      model.RoleUser,
				Content:   query,
				Timestamp: now,
			}); err != nil {
				return err
			}

			answer, err := a.api.Ask(ctx, query)
			if err != nil {
				return err
			}

			if _, err := a.chats.AppendMessage(ctx, userID, current.ID, model.Message{
				Role:      model.RoleAssistant,
				Content:   answer.Text,
				Timestamp: time.Now().Unix(),
				Sources:   answer.Sources,
			}); err != nil {
				return err
			}

			fmt.Println(answer.Text)
			if len(answer.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, s := range answer.Sources {
					if s.URL != "" {
						fmt.Printf("  - %s (%s)\n", s.Title, s.URL)
					} else {
						fmt.Printf("  - %s\n", s.Title)
					}
				}
			}
			return nil
		},
	}
}

func newSessionsCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			snap, err := a.chats.Load(ctx, userID)
			if err != nil {
				return err
			}
			if len(snap.Sessions) == 0 {
				fmt.Println("No chat sessions.")
				return nil
			}
			for _, sess := range snap.Sessions {
				marker := " "
				if sess.ID == snap.CurrentID {
					marker = "*"
				}
				fmt.Printf("%s %s  %s  (%d messages)\n", marker, sess.ID, sess.Title, len(sess.Messages))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new [title]",
		Short: "Create a chat session and select it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			snap, err := a.chats.CreateSession(ctx, userID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("Created session %s\n", snap.CurrentID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <id>",
		Short: "Select a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			snap, err := a.chats.SetCurrent(ctx, userID, args[0])
			if err != nil {
				return err
			}
			if snap.CurrentID != args[0] {
				return fmt.Errorf("no session with id %s", args[0])
			}
			fmt.Printf("Now using session %s\n", snap.CurrentID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a chat session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			if _, err := a.chats.RenameSession(ctx, userID, args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Println("Renamed.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			if _, err := a.chats.DeleteSession(ctx, userID, args[0]); err != nil {
				return err
			}
			fmt.Println("Deleted.")
			return nil
		},
	})

	return cmd
}

func newUploadCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <files...>",
		Short: "Upload documents and summarize them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			userID, err := a.currentUser(ctx)
			if err != nil {
				return err
			}

			var files []model.FileRef
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, model.FileRef{
					Name: filepath.Base(path),
					Size: int64(len(data)),
					Data: data,
				})
			}

			pipe := upload.NewPipeline(a.api, a.cfg.UploadMaxBatch)
			pipe.OnProgress = func(name string, progress int, status model.UploadStatus) {
				fmt.Printf("%s: %s (%d%%)\n", name, status, progress)
			}

			admitted := pipe.Add(files)
			if admitted < len(files) {
				fmt.Printf("Queue is limited to %d files per batch; %d skipped.\n", a.cfg.UploadMaxBatch, len(files)-admitted)
			}

			result, err := pipe.Start(ctx)
			if err != nil {
				return err
			}

			if err := recordUploadResult(ctx, a.chats, userID, result); err != nil {
				return err
			}

			fmt.Printf("Uploaded %d file(s).\n", len(result.Uploaded))
			for _, s := range result.Summaries {
				fmt.Printf("\n%s\n  %s\n", s.Filename, s.Summary)
			}
			if result.SummarizeErr != nil {
				if e, ok := apperr.As(result.SummarizeErr); ok {
					fmt.Printf("\nSummarization failed: %s\n", e.Message)
				} else {
					fmt.Printf("\nSummarization failed: %v\n", result.SummarizeErr)
				}
				fmt.Println("The files are uploaded and can still be queried.")
			}
			return nil
		},
	}
}
