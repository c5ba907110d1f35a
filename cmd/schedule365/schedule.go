package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/njt/schedule365/internal/dateparse"
	"github.com/njt/schedule365/internal/ics"
	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/output"
	"github.com/njt/schedule365/internal/scheduler"
	"github.com/njt/schedule365/libgo365"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [request]",
	Short: "Schedule a meeting",
	Long: `Schedule a Teams meeting from a plain-English request, for example:

  schedule365 schedule "tutoring with Alice Thursday at noon"

Without a request, the meeting is built from flags:

  schedule365 schedule --subject "1:1" --start "tomorrow 2pm" --duration 45m --attendees alice,bob

Attendee names are looked up in the directory by given name. Names without
a match are not invited and are listed in a warning.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text := strings.TrimSpace(strings.Join(args, " "))

		jsonOutput, _ := cmd.Flags().GetBool("json")
		markdownOutput, _ := cmd.Flags().GetBool("markdown")
		icsPath, _ := cmd.Flags().GetString("ics")
		yes, _ := cmd.Flags().GetBool("yes")

		config, err := loadConfig()
		if err != nil {
			return err
		}

		var parser intent.Parser
		if text != "" {
			p, err := newParser(config)
			if err != nil {
				return err
			}
			parser = p
		}

		a, err := newAssistant(cmd, config, parser)
		if err != nil {
			return err
		}

		var (
			client *libgo365.Client
			m      *intent.MeetingIntent
		)
		if text != "" {
			client, m, err = a.Prepare(ctx, text)
			if err != nil {
				return err
			}
		} else {
			m, err = intentFromFlags(cmd, config.TimeZone)
			if err != nil {
				return err
			}
			client, err = a.Authenticate(ctx)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
		}

		sched := a.Scheduler(client)
		res := sched.Resolve(ctx, m)

		fmt.Fprintln(os.Stderr)
		output.PrintIntent(os.Stderr, m)
		output.PrintUnresolvedWarning(os.Stderr, res)

		if !yes {
			ok, err := confirm(os.Stdin, os.Stderr, "\nSchedule this meeting? [y/N]: ")
			if err != nil {
				return err
			}
			if !ok {
				if jsonOutput {
					return output.WriteJSON(os.Stdout, output.FormatActionResponse(false, "Meeting scheduling cancelled"))
				}
				fmt.Fprintln(os.Stderr, "Meeting scheduling cancelled.")
				return nil
			}
		}

		event, err := sched.Create(ctx, m, res)
		if err != nil {
			return err
		}

		if icsPath != "" {
			if err := writeICS(cmd.Context(), client, icsPath, event, m.Description); err != nil {
				return err
			}
		}

		return output.PrintScheduledEvent(os.Stdout, event, res, output.Options{
			JSON:     jsonOutput,
			Markdown: markdownOutput,
		})
	},
}

// intentFromFlags builds the meeting from --subject, --start and friends.
func intentFromFlags(cmd *cobra.Command, defaultTimeZone string) (*intent.MeetingIntent, error) {
	subject, _ := cmd.Flags().GetString("subject")
	start, _ := cmd.Flags().GetString("start")
	if subject == "" || start == "" {
		return nil, fmt.Errorf("give a request, or --subject and --start")
	}

	f := intent.Fields{Subject: subject, Start: start, TimeZone: defaultTimeZone}
	f.End, _ = cmd.Flags().GetString("end")
	f.Location, _ = cmd.Flags().GetString("location")
	f.Description, _ = cmd.Flags().GetString("body")
	f.Attendees, _ = cmd.Flags().GetStringSlice("attendees")
	if tz, _ := cmd.Flags().GetString("timezone"); tz != "" {
		f.TimeZone = tz
	}

	if d, _ := cmd.Flags().GetString("duration"); d != "" {
		if f.End != "" {
			return nil, fmt.Errorf("--end and --duration are mutually exclusive")
		}
		duration, err := dateparse.ParseDuration(d)
		if err != nil {
			return nil, err
		}
		f.Duration = duration
	}

	return intent.FromFields(f, time.Now())
}

// writeICS saves the created meeting as an .ics file with the signed-in
// user as organizer.
func writeICS(ctx context.Context, client *libgo365.Client, path string, event *scheduler.ScheduledEvent, description string) error {
	organizer := ""
	if me, err := client.GetMe(ctx); err == nil {
		organizer = me.Email()
	} else {
		logger.Warn("could not look up organizer for calendar file", logging.Err(err))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create calendar file: %w", err)
	}

	if err := ics.WriteEvent(f, event, description, organizer); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write calendar file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Calendar file written to %s\n", path)
	return nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

var parseCmd = &cobra.Command{
	Use:   "parse <request>",
	Short: "Show how a request would be understood, without scheduling",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		parser, err := newParser(config)
		if err != nil {
			return err
		}

		m, err := parser.Parse(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.WriteJSON(os.Stdout, m)
		}
		output.PrintIntent(os.Stdout, m)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <name>...",
	Short: "Look up attendee email addresses by given name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newAssistant(cmd, config, nil)
		if err != nil {
			return err
		}

		client, err := a.Authenticate(cmd.Context())
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}

		res := a.Scheduler(client).Resolve(cmd.Context(), &intent.MeetingIntent{Attendees: args})

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.WriteJSON(os.Stdout, res)
		}
		output.PrintResolution(os.Stdout, res)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("subject", "", "Meeting subject (when no request is given)")
	scheduleCmd.Flags().String("start", "", "Start time (e.g., 'tomorrow 2pm', '2025-06-12T12:00:00')")
	scheduleCmd.Flags().String("end", "", "End time, same formats as --start")
	scheduleCmd.Flags().String("duration", "", "Duration instead of --end (e.g., 30m, 1h, 90)")
	scheduleCmd.Flags().String("timezone", "", "Time zone (default: configured time zone)")
	scheduleCmd.Flags().StringSlice("attendees", nil, "Attendee given names, comma-separated")
	scheduleCmd.Flags().String("location", "", "Meeting location")
	scheduleCmd.Flags().String("body", "", "Meeting description")
	scheduleCmd.Flags().Bool("json", false, "Output as JSON")
	scheduleCmd.Flags().Bool("markdown", false, "Convert the HTML event body to Markdown")
	scheduleCmd.Flags().String("ics", "", "Also write the meeting to this .ics file")
	scheduleCmd.Flags().BoolP("yes", "y", false, "Schedule without asking for confirmation")
	addAuthFlags(scheduleCmd)

	parseCmd.Flags().Bool("json", false, "Output as JSON")

	resolveCmd.Flags().Bool("json", false, "Output as JSON")
	addAuthFlags(resolveCmd)
}
