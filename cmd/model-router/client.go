// ABOUTME: Client commands that inspect a running server or the built-in model table
// ABOUTME: health, models and conversations print human-readable tables

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/model-router/internal/capability"
	"github.com/2389/model-router/internal/conversation"
)

// clientTimeout bounds every request a client command makes.
const clientTimeout = 10 * time.Second

func newHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Status string `json:"status"`
			}
			if err := getJSON(cmd.Context(), serverURL(addr, "/health", nil), &body); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), body.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "server address")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model capability table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printModels(cmd.OutOrStdout(), capability.DefaultTable())
		},
	}
}

func newConversationsCmd() *cobra.Command {
	var (
		addr  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations held by a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var summaries []conversation.Summary
			if err := getJSON(cmd.Context(), serverURL(addr, "/api/conversations", q), &summaries); err != nil {
				return fmt.Errorf("listing conversations: %w", err)
			}
			return printConversations(cmd.OutOrStdout(), summaries, time.Now())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "server address")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of conversations to list")
	return cmd
}

func printModels(out io.Writer, models []capability.Descriptor) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPROVIDER\tUPSTREAM\tFILES\tCONTEXT\tREASONING")
	for _, d := range models {
		ctxLimit := "unbounded"
		if d.Bounded() {
			ctxLimit = strconv.Itoa(d.MaxContextTokens)
		}
		reasoning := string(d.Reasoning)
		if len(d.Levels) > 0 {
			reasoning += " (" + strings.Join(d.Levels, "/") + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			d.ID, d.Provider, d.UpstreamModel, d.SupportsFiles, ctxLimit, reasoning)
	}
	return tw.Flush()
}

func printConversations(out io.Writer, summaries []conversation.Summary, now time.Time) error {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No conversations")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMODEL\tMESSAGES\tLAST ACTIVITY")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s ago\n",
			s.ID, s.Model, s.MessageCount, now.Sub(s.LastActivityAt).Round(time.Second))
	}
	return tw.Flush()
}

// serverURL accepts host:port or a full http(s) URL.
func serverURL(addr, path string, q url.Values) string {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	if len(q) > 0 {
		return base + path + "?" + q.Encode()
	}
	return base + path
}

// getJSON fetches target and decodes a 200 response into v. Error bodies in
// the server's {"error","kind"} shape are surfaced as the returned error.
func getJSON(ctx context.Context, target string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, apiErr.Error, apiErr.Kind)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
