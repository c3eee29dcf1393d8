package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/five82/mediadeck/internal/backend"
)

func newAdminCommand(ctx *commandContext) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer users (admin accounts only)",
	}
	adminCmd.AddCommand(newAdminStatsCommand(ctx))
	adminCmd.AddCommand(newAdminUsersCommand(ctx))
	adminCmd.AddCommand(newAdminUserCommand(ctx))
	adminCmd.AddCommand(newAdminUpdateCommand(ctx))
	adminCmd.AddCommand(newAdminDeleteCommand(ctx))
	return adminCmd
}

func newAdminStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show system-wide counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(func(client *backend.Client) error {
				stats, err := client.AdminStats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"Users", fmt.Sprintf("%d (%d active)", stats.TotalUserCount, stats.ActiveUserCount)},
					{"Active sessions", strconv.Itoa(stats.ActiveSessionCount)},
					{"Videos", strconv.Itoa(stats.TotalVideoCount)},
					{"Images", strconv.Itoa(stats.TotalImageCount)},
					{"Storage used", formatBytes(stats.TotalStorageUsedBytes)},
					{"Storage quota", formatBytes(stats.TotalStorageQuotaBytes)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newAdminUsersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var q backend.UserQuery
	var active, admins string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if q.IsActive, err = parseOptionalBool("active", active); err != nil {
				return err
			}
			if q.IsAdmin, err = parseOptionalBool("admin", admins); err != nil {
				return err
			}
			return ctx.withBackend(func(client *backend.Client) error {
				users, err := client.ListUsers(cmd.Context(), q)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, users)
				}
				if len(users) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No users found")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{
						u.ID,
						u.Username,
						u.Email,
						yesNo(u.IsActive),
						yesNo(u.IsAdmin),
						formatBytes(u.StorageUsedBytes) + " / " + formatBytes(u.StorageQuotaBytes),
						formatTime(u.LastLoginAt.Time),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Username", "Email", "Active", "Admin", "Storage", "Last login"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "Maximum users to list (max 200)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "Users to skip")
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "Filter by username or email")
	cmd.Flags().StringVar(&active, "active", "", "Filter by active state (true/false)")
	cmd.Flags().StringVar(&admins, "admin", "", "Filter by admin role (true/false)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func parseOptionalBool(name, value string) (*bool, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("--%s: expected true or false, got %q", name, value)
	}
	return &v, nil
}

func newAdminUserCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "user <id>",
		Short: "Show one user with recent sign-in attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackend(func(client *backend.Client) error {
				u, err := client.GetUser(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, u)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s <%s>\n", u.Username, u.Email)
				fmt.Fprintf(out, "  ID:        %s\n", u.ID)
				fmt.Fprintf(out, "  Active:    %s\n", yesNo(u.IsActive))
				fmt.Fprintf(out, "  Admin:     %s\n", yesNo(u.IsAdmin))
				fmt.Fprintf(out, "  Storage:   %s of %s\n", formatBytes(u.StorageUsedBytes), formatBytes(u.StorageQuotaBytes))
				fmt.Fprintf(out, "  Media:     %d videos, %d images\n", u.TotalVideoCount, u.TotalImageCount)
				fmt.Fprintf(out, "  Sessions:  %d active\n", u.ActiveSessionCount)
				fmt.Fprintf(out, "  Created:   %s\n", formatTime(u.CreatedAt.Time))

				if len(u.RecentLoginAttempts) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(u.RecentLoginAttempts))
				for _, a := range u.RecentLoginAttempts {
					result := "ok"
					if !a.Success {
						result = orDash(a.FailureReason)
					}
					rows = append(rows, []string{formatTime(a.CreatedAt.Time), result, orDash(a.IPAddress), truncate(orDash(a.UserAgent), 40)})
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable([]string{"When", "Result", "IP", "User agent"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newAdminUpdateCommand(ctx *commandContext) *cobra.Command {
	var email, quota string
	var active, admin bool

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a user's email, state, role or quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var update backend.UserUpdate
			flags := cmd.Flags()
			if flags.Changed("email") {
				update.Email = &email
			}
			if flags.Changed("active") {
				update.IsActive = &active
			}
			if flags.Changed("admin") {
				update.IsAdmin = &admin
			}
			if flags.Changed("quota") {
				n, err := humanize.ParseBytes(quota)
				if err != nil {
					return fmt.Errorf("--quota: %w", err)
				}
				bytes := int64(n)
				update.StorageQuotaBytes = &bytes
			}
			if update.Empty() {
				return errors.New("nothing to update: pass --email, --active, --admin or --quota")
			}

			return ctx.withBackend(func(client *backend.Client) error {
				u, err := client.UpdateUser(cmd.Context(), strings.TrimSpace(args[0]), update)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: active=%s admin=%s quota=%s\n",
					u.Username, yesNo(u.IsActive), yesNo(u.IsAdmin), formatBytes(u.StorageQuotaBytes))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "New email address")
	cmd.Flags().BoolVar(&active, "active", true, "Activate (true) or deactivate (false)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant (true) or revoke (false) admin rights")
	cmd.Flags().StringVar(&quota, "quota", "", "Storage quota, e.g. 10GiB")
	return cmd
}

func newAdminDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user and all of their media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			id := strings.TrimSpace(args[0])
			return ctx.withBackend(func(client *backend.Client) error {
				if err := client.DeleteUser(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")
	return cmd
}
