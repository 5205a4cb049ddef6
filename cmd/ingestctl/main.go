// Package main implements ingestctl, the operator CLI for the ingestion
// service.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingestctl",
		Short: "Submit and observe knowledge ingestion operations",
		Long: `ingestctl talks to a running ingestd instance. It validates crawl URLs,
drives link review sessions, submits crawls and document uploads, and
follows operation progress.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the ingestd API")
	cmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key when the server has auth enabled")

	cmd.AddCommand(newAddURLCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func newAddURLCmd() *cobra.Command {
	var (
		patterns  string
		tags      []string
		maxDepth  int
		noReview  bool
		selectAll bool
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "add-url <url>",
		Short: "Crawl a URL into the knowledge base",
		Long: `Validates the URL, opens a link review session when the target is a link
collection (llms.txt or sitemap), and submits the crawl. Sources that are
not link collections are submitted directly. Pattern entries are comma
separated; prefix an entry with "!" to exclude.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := newAPIClient(serverURL, apiKey)
			ctx := cmd.Context()

			validated, err := api.validateURL(ctx, args[0])
			if err != nil {
				return err
			}
			if validated.Warning != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", validated.Warning)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "target: %s (%s)\n", validated.URL, validated.CrawlType)

			form := crawlForm{
				URL:           validated.URL,
				Patterns:      patterns,
				Tags:          tags,
				MaxDepth:      maxDepth,
				PatternEdited: cmd.Flags().Changed("patterns"),
				DepthEdited:   cmd.Flags().Changed("depth"),
			}

			var accepted submitResult
			if noReview {
				accepted, err = api.submitCrawl(ctx, form)
				if err != nil {
					return err
				}
			} else {
				accepted, err = runReviewFlow(cmd, api, form, selectAll)
				if err != nil {
					return err
				}
			}

			if accepted.ProgressID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), accepted.Message)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted: %s\n", accepted.ProgressID)
			if wait {
				return followOperation(cmd, api, accepted.ProgressID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&patterns, "patterns", "", `URL filter patterns, e.g. "*docs*, !*archive*"`)
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags to attach to the crawled documents")
	cmd.Flags().IntVar(&maxDepth, "depth", 0, "maximum crawl depth (0 uses the server default)")
	cmd.Flags().BoolVar(&noReview, "no-review", false, "skip link review and submit directly")
	cmd.Flags().BoolVar(&selectAll, "select-all", false, "select every previewed link instead of the filter matches")
	cmd.Flags().BoolVar(&wait, "wait", false, "follow operation progress until it finishes")
	return cmd
}

// runReviewFlow opens a review session and proceeds with the selection. A
// target that is not a link collection falls back to a direct submit.
func runReviewFlow(cmd *cobra.Command, api *apiClient, form crawlForm, selectAll bool) (submitResult, error) {
	ctx := cmd.Context()
	view, err := api.createReview(ctx, form)
	if err != nil {
		if errors.Is(err, errNotLinkCollection) {
			fmt.Fprintln(cmd.OutOrStdout(), "not a link collection, submitting directly")
			return api.submitCrawl(ctx, form)
		}
		return submitResult{}, err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "preview: %d links, %d selected\n", view.TotalLinks, view.SelectedCount)
	for _, l := range view.Links {
		marker := " "
		if l.Selected {
			marker = "x"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", marker, l.URL)
	}

	if selectAll {
		view, err = api.reviewAction(ctx, view.SessionID, "select_all", "", "")
		if err != nil {
			return submitResult{}, err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selected all %d links\n", view.SelectedCount)
	}
	return api.proceed(ctx, view.SessionID)
}

func followOperation(cmd *cobra.Command, api *apiClient, progressID string) error {
	ctx := cmd.Context()
	for {
		op, err := api.getOperation(ctx, progressID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d%% %s\n", op.Status, op.Percent, op.Message)
		if op.Status == "completed" {
			return nil
		}
		if op.Status == "failed" {
			return fmt.Errorf("operation failed: %s", op.Message)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func newUploadCmd() *cobra.Command {
	var (
		mode string
		tags []string
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents into the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := newAPIClient(serverURL, apiKey)
			accepted, err := api.uploadFiles(cmd.Context(), mode, tags, args)
			if err != nil {
				return err
			}
			if accepted.ProgressID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), accepted.Message)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted: %s\n", accepted.ProgressID)
			if wait {
				return followOperation(cmd, api, accepted.ProgressID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "multiple", "upload mode: single, multiple, or folder")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags to attach to the uploaded documents")
	cmd.Flags().BoolVar(&wait, "wait", false, "follow operation progress until it finishes")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [progress-id]",
		Short: "Show operation status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := newAPIClient(serverURL, apiKey)
			if len(args) == 1 {
				op, err := api.getOperation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printOperation(cmd, op)
				return nil
			}
			ops, err := api.listOperations(cmd.Context())
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no operations")
				return nil
			}
			for _, op := range ops {
				printOperation(cmd, op)
			}
			return nil
		},
	}
	return cmd
}

func printOperation(cmd *cobra.Command, op operationView) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s %-9s %3d%%  %s\n",
		op.ProgressID, op.Kind, op.Status, op.Percent, op.SourceKey)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
