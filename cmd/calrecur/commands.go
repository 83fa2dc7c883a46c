package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/mo"
	"github.com/urfave/cli/v2"

	"github.com/cyp0633/calrecur/calendar"
	"github.com/cyp0633/calrecur/event"
	"github.com/cyp0633/calrecur/ics"
	"github.com/cyp0633/calrecur/internal/api"
	"github.com/cyp0633/calrecur/recurrence"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Listen address, overrides the configured one."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			listen := e.cfg.Listen
			if c.IsSet("listen") {
				listen = c.String("listen")
			}

			app := api.New(e.cal, api.Options{
				Logger:      e.logger,
				HorizonDays: e.cfg.Agenda.HorizonDays,
			}).App()

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(e.cfg.FlushRetry, func() {
				if !e.cal.Dirty() {
					return
				}
				if err := e.cal.Flush(context.Background()); err != nil {
					e.logger.Warn("scheduled flush failed", "error", err)
				}
			}); err != nil {
				return fmt.Errorf("invalid flush_retry schedule: %w", err)
			}
			scheduler.Start()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				e.logger.Info("Starting HTTP server.", "listen", listen, "driver", e.cfg.Storage.Driver)
				errCh <- app.Listen(listen)
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				e.logger.Info("Shutting down.")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				err = app.ShutdownWithContext(shutdownCtx)
			}
			<-scheduler.Stop().Done()

			if ferr := e.cal.Flush(context.Background()); ferr != nil {
				err = errors.Join(err, ferr)
			}
			return err
		},
	}
}

func agendaCommand() *cli.Command {
	return &cli.Command{
		Name:  "agenda",
		Usage: "Print occurrences, by default for the configured number of days from today.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "First date (YYYY-MM-DD)."},
			&cli.StringFlag{Name: "to", Usage: "Last date (YYYY-MM-DD), inclusive."},
			&cli.IntFlag{Name: "days", Usage: "Number of days from today, overrides the configured horizon."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			var occs []event.Occurrence
			if c.IsSet("from") || c.IsSet("to") {
				from, err := recurrence.ParseDate(c.String("from"))
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				to, err := recurrence.ParseDate(c.String("to"))
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				occs, err = e.cal.Expand(from, to)
				if err != nil {
					return err
				}
			} else {
				days := e.cfg.Agenda.HorizonDays
				if c.IsSet("days") {
					days = c.Int("days")
				}
				if occs, err = e.cal.NextDays(days); err != nil {
					return err
				}
			}
			return printAgenda(c.App.Writer, occs)
		},
	}
}

func printAgenda(w io.Writer, occs []event.Occurrence) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range occs {
		when := "all day"
		if o.IsTimed() {
			when = o.StartTime.String()
			if o.EndTime != nil {
				when += "-" + o.EndTime.String()
			}
		}
		marker := ""
		switch {
		case o.Override:
			marker = "*"
		case o.Recurring:
			marker = "~"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s%s\t%s\n", o.Date.Format(recurrence.DateLayout), when, o.Title, marker, o.SourceID)
	}
	return tw.Flush()
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Create an event or a recurring series.",
		Flags: append(fieldFlags(),
			&cli.StringFlag{Name: "id", Usage: "Explicit id; generated when empty."},
			&cli.StringFlag{Name: "start", Required: true, Usage: "Start date (YYYY-MM-DD)."},
			&cli.StringFlag{Name: "end", Usage: "End date (YYYY-MM-DD) for multi-day events."},
			&cli.StringFlag{Name: "repeat", Value: "none", Usage: "none, daily, weekly, monthly, yearly or custom."},
			&cli.IntFlag{Name: "interval", Value: 1, Usage: "Step between occurrences in units of the repeat kind."},
			&cli.StringFlag{Name: "weekdays", Usage: "Comma separated weekdays for custom rules (MO,WE,FR)."},
			&cli.StringFlag{Name: "until", Usage: "Last date of the series (YYYY-MM-DD)."},
			&cli.IntFlag{Name: "count", Usage: "Number of occurrences of the series."},
		),
		Action: func(c *cli.Context) error {
			rule, err := ruleFromFlags(c)
			if err != nil {
				return err
			}
			start, err := recurrence.ParseDate(c.String("start"))
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			def := event.Definition{
				ID:              c.String("id"),
				StartDate:       start,
				Recurrence:      rule,
				RecurrenceCount: c.Int("count"),
			}
			if c.IsSet("end") {
				if def.EndDate, err = recurrence.ParseDate(c.String("end")); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
			}
			if c.IsSet("until") {
				until, err := recurrence.ParseDate(c.String("until"))
				if err != nil {
					return fmt.Errorf("--until: %w", err)
				}
				def.RecurrenceEnd = &until
			}

			patch, err := patchFromFlags(c)
			if err != nil {
				return err
			}
			applyFields(&def, patch)

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			created, err := e.cal.Create(c.Context, def)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, created.ID)
			return nil
		},
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit one occurrence, this and following occurrences, or a whole series.",
		ArgsUsage: "<id>",
		Flags: append(append(fieldFlags(), scopeFlags()...),
			&cli.BoolFlag{Name: "clear-time", Usage: "Remove the start and end time."},
		),
		Action: func(c *cli.Context) error {
			id, scope, target, err := scopeArgs(c)
			if err != nil {
				return err
			}
			patch, err := patchFromFlags(c)
			if err != nil {
				return err
			}
			if c.Bool("clear-time") {
				patch.StartTime = mo.Some[*event.Clock](nil)
				patch.EndTime = mo.Some[*event.Clock](nil)
			}
			if patch.IsEmpty() {
				return errors.New("nothing to change")
			}

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			d, err := e.cal.Edit(c.Context, scope, id, target, patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, d.ID)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete one occurrence, this and following occurrences, or a whole series.",
		ArgsUsage: "<id>",
		Flags:     scopeFlags(),
		Action: func(c *cli.Context) error {
			id, scope, target, err := scopeArgs(c)
			if err != nil {
				return err
			}

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			return e.cal.Delete(c.Context, scope, id, target)
		},
	}
}

func upcomingCommand() *cli.Command {
	return &cli.Command{
		Name:      "upcoming",
		Usage:     "List the next dates of a series.",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "Maximum number of dates."},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return errors.New("an event id is required")
			}

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			dates, err := e.cal.UpcomingDates(id, c.Int("limit"))
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(c.App.Writer, d.Format(recurrence.DateLayout))
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the calendar as iCalendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file; stdout when empty."},
			&cli.StringFlag{Name: "name", Value: "calrecur", Usage: "Calendar name."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.Close()

			w := c.App.Writer
			if out := c.String("out"); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return ics.Encode(w, e.cal.Definitions(), ics.Options{Name: c.String("name"), Now: time.Now()})
		},
	}
}

// fieldFlags are the display fields shared by add and edit.
func fieldFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title"},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "location"},
		&cli.StringFlag{Name: "notes"},
		&cli.StringFlag{Name: "start-time", Usage: "HH:MM"},
		&cli.StringFlag{Name: "end-time", Usage: "HH:MM"},
		&cli.BoolFlag{Name: "all-day"},
		&cli.StringFlag{Name: "color"},
		&cli.StringFlag{Name: "category"},
		&cli.StringFlag{Name: "kind", Usage: "personal, work, birthday, holiday, anniversary or other."},
		&cli.IntSliceFlag{Name: "remind", Usage: "Reminder offset in minutes before the start, repeatable."},
	}
}

func scopeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "scope", Value: "single", Usage: "single, future or all."},
		&cli.StringFlag{Name: "date", Usage: "Occurrence date (YYYY-MM-DD) the scope starts from."},
	}
}

func scopeArgs(c *cli.Context) (string, calendar.Scope, time.Time, error) {
	id := c.Args().First()
	if id == "" {
		return "", 0, time.Time{}, errors.New("an event id is required")
	}
	scope, err := calendar.ParseScope(c.String("scope"))
	if err != nil {
		return "", 0, time.Time{}, err
	}
	var target time.Time
	if c.IsSet("date") {
		if target, err = recurrence.ParseDate(c.String("date")); err != nil {
			return "", 0, time.Time{}, fmt.Errorf("--date: %w", err)
		}
	}
	return id, scope, target, nil
}

// patchFromFlags turns the field flags that were set into a patch.
func patchFromFlags(c *cli.Context) (calendar.Patch, error) {
	var p calendar.Patch
	if c.IsSet("title") {
		p.Title = mo.Some(c.String("title"))
	}
	if c.IsSet("description") {
		p.Description = mo.Some(c.String("description"))
	}
	if c.IsSet("location") {
		p.Location = mo.Some(c.String("location"))
	}
	if c.IsSet("notes") {
		p.Notes = mo.Some(c.String("notes"))
	}
	if c.IsSet("color") {
		p.Color = mo.Some(c.String("color"))
	}
	if c.IsSet("category") {
		p.CategoryID = mo.Some(c.String("category"))
	}
	if c.IsSet("kind") {
		p.Kind = mo.Some(event.Kind(c.String("kind")))
	}
	if c.IsSet("all-day") {
		p.AllDay = mo.Some(c.Bool("all-day"))
	}
	if c.IsSet("remind") {
		p.ReminderOffsets = mo.Some(c.IntSlice("remind"))
	}
	for _, f := range []struct {
		name string
		dst  *mo.Option[*event.Clock]
	}{{"start-time", &p.StartTime}, {"end-time", &p.EndTime}} {
		if !c.IsSet(f.name) {
			continue
		}
		clock, err := event.ParseClock(c.String(f.name))
		if err != nil {
			return p, fmt.Errorf("--%s: %w", f.name, err)
		}
		*f.dst = mo.Some(&clock)
	}
	return p, nil
}

// applyFields copies the display fields of a patch onto a new definition.
func applyFields(d *event.Definition, p calendar.Patch) {
	d.Title = p.Title.OrEmpty()
	d.Description = p.Description.OrEmpty()
	d.Location = p.Location.OrEmpty()
	d.Notes = p.Notes.OrEmpty()
	d.Color = p.Color.OrEmpty()
	d.CategoryID = p.CategoryID.OrEmpty()
	d.Kind = p.Kind.OrEmpty()
	d.AllDay = p.AllDay.OrEmpty()
	d.ReminderOffsets = p.ReminderOffsets.OrEmpty()
	d.StartTime = p.StartTime.OrEmpty()
	d.EndTime = p.EndTime.OrEmpty()
}

func ruleFromFlags(c *cli.Context) (recurrence.Rule, error) {
	kind := recurrence.Kind(strings.ToLower(c.String("repeat")))
	if !kind.Valid() {
		return recurrence.Rule{}, fmt.Errorf("--repeat: unknown kind %q", c.String("repeat"))
	}
	if kind == recurrence.None {
		return recurrence.Rule{Kind: recurrence.None}, nil
	}
	if c.Int("interval") < 1 {
		return recurrence.Rule{}, fmt.Errorf("--interval must be at least 1")
	}
	rule := recurrence.Every(kind, c.Int("interval"))
	if kind == recurrence.Custom && c.IsSet("weekdays") {
		var days []time.Weekday
		for _, s := range strings.Split(c.String("weekdays"), ",") {
			d, ok := recurrence.ParseWeekday(s)
			if !ok {
				return recurrence.Rule{}, fmt.Errorf("--weekdays: unknown weekday %q", s)
			}
			days = append(days, d)
		}
		rule.Weekdays = recurrence.NewWeekdaySet(days...)
	}
	return rule, nil
}
