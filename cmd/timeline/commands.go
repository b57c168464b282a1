package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkilian/timeline/internal/app"
	"github.com/arkilian/timeline/internal/namespace"
	"github.com/arkilian/timeline/internal/timeline"
	"github.com/arkilian/timeline/pkg/types"
)

func newAddCmd(g *globals) *cobra.Command {
	var (
		in                          types.EntryInput
		category, status, createdAt string
		inputData, outputData, meta string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new timeline entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App, user string) error {
				in.UserEmail = user
				if in.UserID == "" {
					in.UserID = user
				}
				in.Category = types.Category(category)
				in.Status = types.Status(status)
				var err error
				if in.InputData, err = jsonFlag("input", inputData); err != nil {
					return err
				}
				if in.OutputData, err = jsonFlag("output", outputData); err != nil {
					return err
				}
				if in.Metadata, err = jsonFlag("metadata", meta); err != nil {
					return err
				}
				if createdAt != "" {
					if in.CreatedAt, err = parseTime(createdAt, false); err != nil {
						return err
					}
				}
				e, err := a.Store().Add(cmd.Context(), types.NewEntry(in))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.UserID, "user-id", "", "Owner user id, default the --user email")
	f.StringVar(&in.AIName, "ai-name", "", "Name of the acting assistant")
	f.StringVar(&in.Action, "action", "", "Action performed")
	f.StringVar(&category, "category", "", "Category: general, ai, workflow, command, security, config")
	f.StringVar(&status, "status", "", "Status: success, error, pending, cancelled")
	f.StringVar(&in.ErrorMessage, "error", "", "Error message (status error only)")
	f.Int64Var(&in.Duration, "duration", 0, "Duration in milliseconds")
	f.StringVar(&in.InputSummary, "input-summary", "", "Short description of the input")
	f.StringVar(&in.OutputSummary, "output-summary", "", "Short description of the output")
	f.StringVar(&inputData, "input", "", "Input payload as JSON")
	f.StringVar(&outputData, "output", "", "Output payload as JSON")
	f.StringVar(&meta, "metadata", "", "Metadata object as JSON")
	f.StringSliceVar(&in.Tags, "tag", nil, "Tag (repeatable)")
	f.BoolVar(&in.IsSystemGenerated, "system", false, "Mark the entry as system generated")
	f.StringVar(&createdAt, "at", "", "Creation time (RFC 3339), default now")
	return cmd
}

func newGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App, user string) error {
				e, err := a.Store().Get(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				if e == nil {
					return fmt.Errorf("entry %s not found", args[0])
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
}

func newUpdateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "update <file.json>",
		Short: "Overwrite an existing entry with the JSON document in file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			var e types.Entry
			if err := json.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("invalid entry document: %w", err)
			}
			return g.withApp(cmd, func(a *app.App, user string) error {
				if !strings.EqualFold(e.UserEmail, user) {
					return fmt.Errorf("entry belongs to %s, not %s", e.UserEmail, user)
				}
				updated, err := a.Store().Update(cmd.Context(), &e)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), updated)
			})
		},
	}
}

// listFlags binds the filters shared by list and stats.
func listFlags(cmd *cobra.Command, opts *timeline.ListOptions, category, status *string, paged bool) {
	f := cmd.Flags()
	f.IntVar(&opts.Year, "year", 0, "Calendar year")
	f.IntVar(&opts.Month, "month", 0, "Calendar month (requires --year)")
	f.IntVar(&opts.Day, "day", 0, "Day of month (requires --month)")
	f.StringVar(category, "category", "", "Only entries of this category")
	f.StringVar(status, "status", "", "Only entries with this status")
	if paged {
		f.IntVar(&opts.Page, "page", 0, "Page number, 1-based")
		f.IntVar(&opts.Limit, "limit", 0, "Page size")
	}
}

func newListCmd(g *globals) *cobra.Command {
	var (
		opts             timeline.ListOptions
		category, status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Category, opts.Status = types.Category(category), types.Status(status)
			return g.withApp(cmd, func(a *app.App, user string) error {
				entries, err := a.Store().List(cmd.Context(), user, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), nonNil(entries))
			})
		},
	}
	listFlags(cmd, &opts, &category, &status, true)
	return cmd
}

func newStatsCmd(g *globals) *cobra.Command {
	var (
		opts             timeline.ListOptions
		category, status string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Category, opts.Status = types.Category(category), types.Status(status)
			return g.withApp(cmd, func(a *app.App, user string) error {
				summary, err := a.Store().Stats(cmd.Context(), user, opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	listFlags(cmd, &opts, &category, &status, false)
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var (
		opts                       timeline.SearchOptions
		category, status, from, to string
	)
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search entries by relevance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Category, opts.Status = types.Category(category), types.Status(status)
			var err error
			if from != "" {
				if opts.From, err = parseTime(from, false); err != nil {
					return err
				}
			}
			if to != "" {
				if opts.To, err = parseTime(to, true); err != nil {
					return err
				}
			}
			return g.withApp(cmd, func(a *app.App, user string) error {
				entries, err := a.Store().Search(cmd.Context(), user, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), nonNil(entries))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "", "Only entries of this category")
	f.StringVar(&status, "status", "", "Only entries with this status")
	f.StringVar(&from, "from", "", "Earliest creation time (RFC 3339 or YYYY-MM-DD), inclusive")
	f.StringVar(&to, "to", "", "Latest creation time (RFC 3339 or YYYY-MM-DD), inclusive")
	f.IntVar(&opts.Page, "page", 0, "Page number, 1-based")
	f.IntVar(&opts.Limit, "limit", 0, "Page size")
	f.BoolVar(&opts.ServerSide, "server-side", false, "Pre-filter candidates with a search command")
	return cmd
}

func newRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete one entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App, user string) error {
				removed, err := a.Store().Remove(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]bool{"removed": removed})
			})
		},
	}
}

func newTagCmd(g *globals, add bool) *cobra.Command {
	use, short := "untag", "Remove tags from an entry"
	if add {
		use, short = "tag", "Add tags to an entry"
	}
	return &cobra.Command{
		Use:   use + " <id> <tag>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App, user string) error {
				var (
					e   *types.Entry
					err error
				)
				if add {
					e, err = a.Store().Tag(cmd.Context(), user, args[0], args[1:]...)
				} else {
					e, err = a.Store().Untag(cmd.Context(), user, args[0], args[1:]...)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), e)
			})
		},
	}
}

func newPurgeCmd(g *globals) *cobra.Command {
	var (
		olderThan string
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete entries older than a retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			retention, err := parseRetention(olderThan)
			if err != nil {
				return err
			}
			return g.withApp(cmd, func(a *app.App, user string) error {
				if dryRun {
					expired, err := a.Store().FindExpired(cmd.Context(), user, retention)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), nonNil(expired))
				}
				result, err := a.Store().PurgeOlderThanWithResult(cmd.Context(), user, retention)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "90d", "Retention period, e.g. 30d or 720h")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only print the entries that would be deleted")
	return cmd
}

func newArchivesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List archives written by purge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(a *app.App, user string) error {
				if a.Archiver() == nil {
					return fmt.Errorf("archiving is disabled")
				}
				ns, err := namespace.FromEmail(user)
				if err != nil {
					return err
				}
				paths, err := a.Archiver().List(cmd.Context(), ns)
				if err != nil {
					return err
				}
				if paths == nil {
					paths = []string{}
				}
				return printJSON(cmd.OutOrStdout(), paths)
			})
		},
	}
}

// parseRetention accepts a Go duration or a whole number of days ("30d").
func parseRetention(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid retention %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", s, err)
	}
	return d, nil
}

// parseTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func jsonFlag(name, s string) (types.Value, error) {
	if s == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s)) {
		return nil, fmt.Errorf("--%s is not valid JSON", name)
	}
	return types.Value(s), nil
}

func nonNil(entries []*types.Entry) []*types.Entry {
	if entries == nil {
		return []*types.Entry{}
	}
	return entries
}
