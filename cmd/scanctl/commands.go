package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"shelfwatch/internal/audit"
	scanservice "shelfwatch/internal/scan/service"
	sessionservice "shelfwatch/internal/sessions/service"
	"shelfwatch/pkg/auth"
	"shelfwatch/pkg/client"
	"shelfwatch/pkg/model"

	"github.com/spf13/cobra"
)

const (
	EnvServer  = "SHELFWATCH_URL"
	EnvToken   = "SHELFWATCH_TOKEN"
	EnvStation = "SHELFWATCH_STATION"
)

type options struct {
	server  string
	token   string
	station string
	timeout time.Duration
}

func (o *options) client() *client.HttpClient {
	c := client.NewHttpClient(o.server)
	c.Token = o.token
	c.Station = o.station
	c.HTTPClient.Timeout = o.timeout
	return c
}

func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "scanctl",
		Short:         "Operate a shelfwatch tracker from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr(EnvServer, "http://localhost:8080"), "tracker base URL")
	flags.StringVar(&opts.token, "token", os.Getenv(EnvToken), "bearer token")
	flags.StringVar(&opts.station, "station", envOr(EnvStation, "scanctl"), "station id sent with each request")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		scanCmd(opts),
		statusCmd(opts),
		statsCmd(opts),
		recentCmd(opts),
		tokenCmd(),
		watchCmd(opts),
	)
	return root
}

func scanCmd(opts *options) *cobra.Command {
	var personID string
	cmd := &cobra.Command{
		Use:   "scan <code>",
		Short: "Submit a scanned code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := model.ScanRequest{Token: args[0], PersonID: personID, Station: opts.station}

			var result scanservice.Result
			if err := post(cmd.Context(), opts.client(), "/api/v1/scan", req, &result); err != nil {
				return err
			}
			printScan(cmd.OutOrStdout(), &result)
			return nil
		},
	}
	cmd.Flags().StringVar(&personID, "person", "", "person id for book and equipment scans")
	return cmd
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <barcode>",
		Short: "Show whether a person is checked in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status scanservice.PersonStatus
			path := "/api/v1/self-service/status/" + url.PathEscape(args[0])
			if err := get(cmd.Context(), opts.client(), path, &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if status.Person != nil {
				fmt.Fprintf(out, "%s %s (%s)\n", status.Person.FirstName, status.Person.LastName, status.Person.Category)
			}
			fmt.Fprintf(out, "checked in:   %t\n", status.IsCheckedIn)
			fmt.Fprintf(out, "can check in: %t\n", status.CanCheckIn)
			if status.CooldownRemainingSeconds > 0 {
				fmt.Fprintf(out, "cooldown:     %ds\n", status.CooldownRemainingSeconds)
			}
			if status.Message != "" {
				fmt.Fprintln(out, status.Message)
			}
			return nil
		},
	}
}

func statsCmd(opts *options) *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show visit statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/self-service/statistics"
			if since != "" {
				if _, err := time.Parse(time.RFC3339, since); err != nil {
					return fmt.Errorf("--since must be RFC3339: %w", err)
				}
				path += "?since=" + url.QueryEscape(since)
			}

			var stats sessionservice.Statistics
			if err := get(cmd.Context(), opts.client(), path, &stats); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "since:          %s\n", stats.Since.Format(time.RFC3339))
			fmt.Fprintf(out, "check-ins:      %d\n", stats.TotalCheckIns)
			fmt.Fprintf(out, "unique persons: %d\n", stats.UniquePersons)
			fmt.Fprintf(out, "completed:      %d\n", stats.CompletedSessions)
			fmt.Fprintf(out, "cancelled:      %d\n", stats.CancelledSessions)
			fmt.Fprintf(out, "active now:     %d\n", stats.ActiveNow)
			fmt.Fprintf(out, "average visit:  %.1f min\n", stats.AverageMinutes)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 start time (default: start of today)")
	return cmd
}

func recentCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent scans from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []audit.Entry
			path := "/api/v1/scan/recent?limit=" + strconv.Itoa(limit)
			if err := get(cmd.Context(), opts.client(), path, &entries); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-10s %-9s %-9s %s\n", e.OccurredAt.Format(time.RFC3339), e.Token, e.TokenType, e.Outcome, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the tracker's JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret (or JWT_SECRET) is required")
			}
			token, err := auth.NewHMAC(secret).Issue(subject, role, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "shared HMAC secret")
	cmd.Flags().StringVar(&subject, "subject", "front-desk", "token subject")
	cmd.Flags().StringVar(&role, "role", "staff", "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func printScan(out io.Writer, r *scanservice.Result) {
	line := fmt.Sprintf("[%s] %s", r.Outcome, r.Message)
	if r.Action != "" {
		line = fmt.Sprintf("[%s %s] %s", r.Outcome, r.Action, r.Message)
	}
	fmt.Fprintln(out, line)
	if r.RemainingSeconds > 0 {
		fmt.Fprintf(out, "retry in %ds\n", r.RemainingSeconds)
	}
}

func get(ctx context.Context, c *client.HttpClient, path string, target any) error {
	resp, err := c.GET(ctxOrBackground(ctx), path)
	if err != nil {
		return err
	}
	return decode(resp, target)
}

func post(ctx context.Context, c *client.HttpClient, path string, body, target any) error {
	resp, err := c.POST(ctxOrBackground(ctx), path, body)
	if err != nil {
		return err
	}
	return decode(resp, target)
}

func decode(resp *client.Response, target any) error {
	if !resp.OK() {
		return fmt.Errorf("tracker returned %d: %s", resp.StatusCode, client.GetErrorMessage(resp))
	}
	if err := resp.DecodeData(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
