package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tally/internal/core"
	"tally/internal/counter"
	"tally/internal/services"
)

const defaultSummaryDays = 7

// app carries what every subcommand needs. open is called once per command
// and the service is closed when the command returns.
type app struct {
	open func(ctx context.Context) (*services.TrackerService, error)
}

func (a *app) withService(cmd *cobra.Command, fn func(svc *services.TrackerService) error) error {
	svc, err := a.open(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tallyctl",
		Short: "Record and inspect daily tracker counts",
		Long: `tallyctl works on the same storage as the tally server.

Trackers:
  habits - water, move, breath
  moods  - happy, okay, meh, sad`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newTrackersCmd(a),
		newRecordCmd(a),
		newCountCmd(a),
		newDayCmd(a),
		newClearCmd(a),
		newSummaryCmd(a),
		newStreaksCmd(a),
	)
	return root
}

func newTrackersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trackers",
		Short: "List trackers and their categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				w := newTable(cmd.OutOrStdout())
				for _, t := range svc.Trackers() {
					names := make([]string, 0, len(t.Categories))
					for _, c := range t.Categories {
						names = append(names, c.Name)
					}
					fmt.Fprintf(w, "%s\t%s\n", t.Name, strings.Join(names, ", "))
				}
				return w.Flush()
			})
		},
	}
}

func newRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record <tracker> <category>",
		Short: "Record one event for today",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				ch, err := svc.RecordEvent(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s/%s on %s: count %d, day total %d\n",
					ch.Tracker, ch.Category.Name, ch.Day, ch.Count, ch.DayTotal)
				return nil
			})
		},
	}
}

func newCountCmd(a *app) *cobra.Command {
	var day, category string
	cmd := &cobra.Command{
		Use:   "count <tracker>",
		Short: "Print the count for a day, optionally for one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				st, err := svc.Store(args[0])
				if err != nil {
					return err
				}
				d, err := dayOrToday(st, day)
				if err != nil {
					return err
				}
				var cats []core.Category
				if category != "" {
					_, c, err := svc.Category(args[0], category)
					if err != nil {
						return err
					}
					cats = append(cats, c)
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.CountFor(d, cats...))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&category, "category", "", "restrict the count to one category")
	return cmd
}

func newDayCmd(a *app) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "day <tracker>",
		Short: "Show every category's count for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				st, err := svc.Store(args[0])
				if err != nil {
					return err
				}
				d, err := dayOrToday(st, day)
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintf(w, "%s\t%s\n", st.Tracker().Name, d)
				for _, c := range st.Day(d) {
					fmt.Fprintf(w, "%s\t%d\n", c.Category.Name, c.Count)
				}
				fmt.Fprintf(w, "total\t%d\n", st.CountFor(d))
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var (
		day string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "clear <tracker>",
		Short: "Clear one day or every count of a tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				st, err := svc.Store(args[0])
				if err != nil {
					return err
				}
				if all {
					if err := st.ClearAll(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "cleared all %s counts\n", st.Tracker().Name)
					return nil
				}
				d, err := core.ParseDayKey(day)
				if err != nil {
					return fmt.Errorf("%w: --day=%q", err, day)
				}
				if err := st.ClearDay(cmd.Context(), d); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s on %s\n", st.Tracker().Name, d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to clear as YYYY-MM-DD")
	cmd.Flags().BoolVar(&all, "all", false, "clear every recorded day")
	cmd.MarkFlagsMutuallyExclusive("day", "all")
	cmd.MarkFlagsOneRequired("day", "all")
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary <tracker>",
		Short: "Summarize counts over an inclusive day range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				st, err := svc.Store(args[0])
				if err != nil {
					return err
				}
				end, err := dayOrToday(st, to)
				if err != nil {
					return err
				}
				start, err := end.AddDays(-(defaultSummaryDays - 1))
				if err != nil {
					return err
				}
				if from != "" {
					if start, err = core.ParseDayKey(from); err != nil {
						return fmt.Errorf("%w: --from=%q", err, from)
					}
				}

				sum, err := svc.Summarize(args[0], start, end)
				if err != nil {
					return err
				}
				writeSummary(cmd.OutOrStdout(), sum)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day as YYYY-MM-DD (default six days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "last day as YYYY-MM-DD (default today)")
	return cmd
}

func newStreaksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "streaks <tracker>",
		Short: "Show consecutive-day streaks per category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *services.TrackerService) error {
				st, err := svc.Store(args[0])
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				for _, c := range st.Streaks() {
					fmt.Fprintf(w, "%s\t%d\n", c.Category.Name, c.Count)
				}
				return w.Flush()
			})
		},
	}
}

func writeSummary(out io.Writer, sum core.RangeSummary) {
	w := newTable(out)
	fmt.Fprintf(w, "%s\t%s..%s\n", sum.Tracker, sum.From, sum.To)
	for _, c := range sum.ByCategory {
		fmt.Fprintf(w, "%s\t%d\n", c.Category.Name, c.Count)
	}
	fmt.Fprintf(w, "total\t%d\n", sum.Total)
	_ = w.Flush()
}

func dayOrToday(st *counter.Store, s string) (core.DayKey, error) {
	if s == "" {
		return st.TodayKey(), nil
	}
	d, err := core.ParseDayKey(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, s)
	}
	return d, nil
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}
