package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/narratica/narratica/internal/app"
	"github.com/narratica/narratica/internal/models"
	"github.com/narratica/narratica/internal/services"
)

const defaultCLIUser = "cli"

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var req models.StoryRequest
	var user string
	var output string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store a new story",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				tracker := a.Progress.CreateTracker(uuid.NewString())
				done := make(chan struct{})
				if !quiet {
					go printProgress(cmd, tracker, done)
				} else {
					close(done)
				}

				story, err := a.Stories.Generate(cmd.Context(), user, req, tracker)
				<-done
				if err != nil {
					return err
				}

				if output == outputText {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d pages\n", story.ID, story.Document.Title, len(story.Document.Pages))
					return nil
				}
				return writeStructured(cmd.OutOrStdout(), output, story)
			})
		},
	}

	cmd.Flags().StringVar(&req.ChildName, "name", "", "Name of the child the story is about")
	cmd.Flags().IntVar(&req.ChildAge, "age", 0, "Age of the child")
	cmd.Flags().StringVar(&req.Theme, "theme", "", "Story theme")
	cmd.Flags().StringVar(&req.Setting, "setting", "", "Where the story takes place")
	cmd.Flags().StringSliceVar(&req.Companions, "companions", nil, "Companion characters (comma separated)")
	cmd.Flags().StringVar(&req.Moral, "moral", "", "Lesson the story should teach")
	cmd.Flags().IntVar(&req.PageCount, "pages", models.DefaultPageCount, "Number of pages")
	cmd.Flags().StringVar(&req.IllustrationStyle, "style", "", "Illustration style")
	cmd.Flags().StringVar(&req.Language, "language", "", "Story language")
	cmd.Flags().StringVar(&user, "user", defaultCLIUser, "Owner of the generated story")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func printProgress(cmd *cobra.Command, tracker *services.ProgressTracker, done chan<- struct{}) {
	defer close(done)
	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	for update := range updates {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%3d%%] %s\n", update.Progress, update.Message)
		if update.Finished() {
			return
		}
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var user string
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				summaries, err := a.Stories.List(cmd.Context(), user)
				if err != nil {
					return err
				}
				if output != outputText {
					return writeStructured(cmd.OutOrStdout(), output, summaries)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPAGES\tCREATED")
				for _, s := range summaries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Title, s.Status, s.PageCount, s.CreatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultCLIUser, "Owner whose stories are listed")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var user string
	var format string
	var target string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a stored story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				result, err := a.Exports.ExportStory(cmd.Context(), user, args[0], format)
				if err != nil {
					return err
				}
				if target == "" {
					_, err = fmt.Fprint(cmd.OutOrStdout(), result.Content)
					return err
				}
				if err := os.WriteFile(target, []byte(result.Content), 0644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", result.StoryID, target)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultCLIUser, "Owner of the story")
	cmd.Flags().StringVarP(&format, "format", "f", services.FormatMarkdown, "Export format: json, markdown, txt or yaml")
	cmd.Flags().StringVar(&target, "out", "", "Write to a file instead of stdout")
	return cmd
}
