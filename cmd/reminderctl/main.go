// Command reminderctl runs the notification admin actions from a shell:
// reminder passes, test notifications and slot lookups.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gynoconnect/clinic-scheduler/internal/app/bootstrap"
	appconfig "github.com/gynoconnect/clinic-scheduler/internal/config"
	"github.com/gynoconnect/clinic-scheduler/internal/notify"
	"github.com/gynoconnect/clinic-scheduler/internal/reminders"
	"github.com/gynoconnect/clinic-scheduler/internal/schedule"
	"github.com/gynoconnect/clinic-scheduler/pkg/logging"
)

type buildFunc func(ctx context.Context) (*bootstrap.App, error)

func main() {
	build := func(ctx context.Context) (*bootstrap.App, error) {
		cfg := appconfig.Load()
		logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
		return bootstrap.Build(ctx, cfg, logger)
	}
	if err := newRootCmd(build).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(build buildFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "reminderctl",
		Short:         "Clinic scheduler notification tooling",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(triggerCmd(build), testCmd(build), slotsCmd(build))
	return root
}

func triggerCmd(build buildFunc) *cobra.Command {
	var pass string
	var localLedger bool
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run reminder passes now",
		Long: "Run reminder passes now. Claims go to the Redis ledger shared with the API server; " +
			"without REDIS_ADDR the command refuses to run unless --local-ledger is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, build, func(ctx context.Context, app *bootstrap.App) (any, error) {
				if app.Redis == nil && !localLedger {
					return nil, errors.New("trigger: no Redis ledger (check REDIS_ADDR); reminders already sent by the server would be sent again, use --local-ledger to override")
				}
				switch pass {
				case "all":
					return app.Scheduler.TriggerNow(ctx)
				case string(reminders.PassDayAhead):
					return app.Scheduler.RunDayAhead(ctx)
				case string(reminders.PassSameDay):
					return app.Scheduler.RunSameDay(ctx)
				default:
					return nil, fmt.Errorf("unknown pass %q", pass)
				}
			})
		},
	}
	cmd.Flags().StringVar(&pass, "pass", "all", "pass to run: all, day_ahead or same_day")
	cmd.Flags().BoolVar(&localLedger, "local-ledger", false, "run with an in-process ledger that is not shared with the server")
	return cmd
}

func testCmd(build buildFunc) *cobra.Command {
	var kind, channel, to, appointmentID string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send one test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := notify.ParseKind(kind)
			if err != nil {
				return err
			}
			ch, err := notify.ParseChannel(channel)
			if err != nil {
				return err
			}
			req := reminders.TestRequest{Kind: k, Channel: ch, To: to}
			if appointmentID != "" {
				id, err := uuid.Parse(appointmentID)
				if err != nil {
					return fmt.Errorf("invalid appointment id: %w", err)
				}
				req.AppointmentID = &id
			}
			return withApp(cmd, build, func(ctx context.Context, app *bootstrap.App) (any, error) {
				status, err := app.Scheduler.SendTest(ctx, req)
				out := map[string]any{"status": status, "kind": k, "channel": ch}
				if err != nil {
					out["error"] = err.Error()
				}
				return out, nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(notify.KindConfirmation), "notification kind")
	cmd.Flags().StringVar(&channel, "channel", string(notify.ChannelEmail), "email or sms")
	cmd.Flags().StringVar(&to, "to", "", "recipient address or phone")
	cmd.Flags().StringVar(&appointmentID, "appointment", "", "fill the template from this appointment")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func slotsCmd(build buildFunc) *cobra.Command {
	var doctorID, date string
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free slots for a doctor on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := schedule.ParseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd, build, func(ctx context.Context, app *bootstrap.App) (any, error) {
				return app.Slots.Slots(ctx, doctorID, day)
			})
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func withApp(cmd *cobra.Command, build buildFunc, fn func(ctx context.Context, app *bootstrap.App) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := build(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	out, err := fn(ctx, app)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
