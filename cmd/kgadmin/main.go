// Package main provides kgadmin, the operator CLI for a running kgcore server.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"kgcore/internal/identity"
	"kgcore/internal/platform/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	c := &client{}

	cmd := &cobra.Command{
		Use:   "kgadmin",
		Short: "Operate a kgcore server",
		Long: `kgadmin talks to the kgcore HTTP API.

Examples:
  kgadmin token --user amy --role alpha:editor
  kgadmin status 0b7c... --scope CHILDREN_ONLY
  kgadmin find http://example.org/ada
  kgadmin failed --limit 20
  kgadmin replay 0b7c...
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&c.server, "server", envOr("KG_SERVER", "http://localhost:8080"), "kgcore base URL")
	cmd.PersistentFlags().StringVar(&c.token, "token", os.Getenv("KG_TOKEN"), "Bearer token")
	cmd.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "Request timeout")

	cmd.AddCommand(tokenCmd(), statusCmd(c), findCmd(c), failedCmd(c), replayCmd(c), eventsCmd(c))
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		claims identity.Claims
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token with the server's JWT settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if claims.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			jwt := config.FromEnv().JWT
			token, err := identity.NewTokenService(jwt.SigningKey, jwt.Issuer, jwt.Audience).Issue(claims, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&claims.UserID, "user", "", "User id")
	cmd.Flags().StringVar(&claims.UserName, "name", "", "Display name")
	cmd.Flags().StringVar(&claims.ClientID, "client", "", "Client id")
	cmd.Flags().StringSliceVar(&claims.Roles, "role", nil, "User role, e.g. alpha:editor or :admin")
	cmd.Flags().StringSliceVar(&claims.ClientRoles, "client-role", nil, "Client role")
	cmd.Flags().StringSliceVar(&claims.Invitations, "invitation", nil, "Instance uuid the user was invited to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func statusCmd(c *client) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "status <uuid>",
		Short: "Show the release status of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid instance id: %w", err)
			}
			q := url.Values{"scope": {scope}}
			return c.do(cmd, "GET", "/instances/"+id.String()+"/release-status?"+q.Encode(), nil)
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "TOP_INSTANCE_ONLY", "TOP_INSTANCE_ONLY or CHILDREN_ONLY")
	return cmd
}

func findCmd(c *client) *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "find <identifier>...",
		Short: "Find the instance carrying any of the identifiers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"identifiers": args}
			q := url.Values{"stage": {stage}}
			return c.do(cmd, "POST", "/instances/find?"+q.Encode(), body)
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "IN_PROGRESS", "IN_PROGRESS or RELEASED")
	return cmd
}

func eventsCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "events <uuid>",
		Short: "List the journaled events of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid instance id: %w", err)
			}
			return c.do(cmd, "GET", "/instances/"+id.String()+"/events", nil)
		},
	}
}

func failedCmd(c *client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List events that failed to apply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.do(cmd, "GET", "/admin/events/failed?limit="+strconv.Itoa(limit), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	return cmd
}

func replayCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <uuid>",
		Short: "Re-derive an instance from its contributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid instance id: %w", err)
			}
			return c.do(cmd, "POST", "/admin/instances/"+id.String()+"/replay", nil)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
