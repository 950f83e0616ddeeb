package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/huddle/internal/finalize"
)

func newReportCommand(deps *clientDeps) *cobra.Command {
	var (
		flags    clientFlags
		follow   bool
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report <meeting-id>",
		Short: "Show a meeting's post-call report",
		Long: `Show the summary, transcript and recording of a meeting.

With --follow the command polls until the meeting is completed or cancelled.

Examples:
  # Current state of the report
  huddle report 6f1c...

  # Wait for processing to finish, as JSON
  huddle report 6f1c... --follow -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client(deps)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			fetch := reportFetcher(c, args[0])
			var report finalize.Report
			if follow {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
				report, err = finalize.PollReport(ctx, fetch, interval)
			} else {
				report, err = fetch(ctx)
			}
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), flags.output, report)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "poll until the report is final")
	cmd.Flags().DurationVar(&interval, "interval", 3*time.Second, "poll interval with --follow")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up following after this long")
	return cmd
}

func newFinalizeCommand(deps *clientDeps) *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "finalize <meeting-id>",
		Short: "Queue a meeting for summary and report generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client(deps)
			if err != nil {
				return err
			}
			var ack finalize.Ack
			body := map[string]string{"meetingId": args[0]}
			if err := c.do(cmd.Context(), http.MethodPost, "/v1/finalize-meeting", body, &ack); err != nil {
				return err
			}
			if flags.output == "json" {
				return printJSON(cmd.OutOrStdout(), ack)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "meeting %s is %s (queued: %t)\nreport: %s\n", ack.MeetingID, ack.Status, ack.Queued, ack.ReportURL)
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func reportFetcher(c *apiClient, meetingID string) finalize.FetchFunc {
	path := "/v1/meetings/" + url.PathEscape(meetingID) + "/report"
	return func(ctx context.Context) (finalize.Report, error) {
		var r finalize.Report
		err := c.do(ctx, http.MethodGet, path, nil, &r)
		return r, err
	}
}

func writeReport(w io.Writer, format string, r finalize.Report) error {
	if format == "json" {
		return printJSON(w, r)
	}
	fmt.Fprintf(w, "%s (%s)\n", r.Name, r.Status)
	if r.AgentName != "" {
		fmt.Fprintf(w, "agent:     %s\n", r.AgentName)
	}
	if r.DurationSeconds != nil {
		d := time.Duration(*r.DurationSeconds * float64(time.Second)).Round(time.Second)
		fmt.Fprintf(w, "duration:  %s\n", d)
	}
	if r.RecordingURL != "" {
		fmt.Fprintf(w, "recording: %s\n", r.RecordingURL)
	}
	if !r.Ready() {
		msg := "report not ready yet"
		if r.Status.Terminal() {
			msg = "no report: meeting " + string(r.Status)
		}
		_, err := fmt.Fprintf(w, "\n%s\n", msg)
		return err
	}
	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", r.Summary)
	}
	if r.Transcript != "" {
		fmt.Fprintf(w, "\n--- transcript ---\n%s\n", r.Transcript)
	}
	return nil
}
