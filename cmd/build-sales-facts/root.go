package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/fluxdrive/internal/calendar"
	"github.com/smallbiznis/fluxdrive/internal/config"
	"github.com/smallbiznis/fluxdrive/internal/salesfact/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type openFunc func(ctx context.Context, sourceOverride string) (domain.Service, *zap.Logger, func(context.Context) error, error)

// usageError marks bad input so main exits with status 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

type rootFlags struct {
	processDate string
	source      string
}

func newRootCmd(open openFunc, out io.Writer) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "build-sales-facts [YYYY-MM-DD]",
		Short: "Rebuild one day of fact_sales_events from raw listings",
		Long: `Replaces the fact_sales_events partition for a processing date with the
sold listings read from the configured raw source. Re-running a date is safe:
the partition is deleted and rewritten in one transaction.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := flags.processDate
			if len(args) == 1 {
				if raw != "" && raw != args[0] {
					return usagef("process date given twice: %q and %q", raw, args[0])
				}
				raw = args[0]
			}
			processDate, err := parseDateFlag("process-date", raw)
			if err != nil {
				return err
			}
			if err := validateSource(flags.source); err != nil {
				return err
			}

			return withService(cmd.Context(), open, flags.source, func(ctx context.Context, svc domain.Service, log *zap.Logger) error {
				result, err := svc.Run(ctx, processDate)
				if err != nil {
					log.Error("sales fact rebuild failed",
						zap.String("process_date", processDate.String()),
						zap.Error(err),
					)
					return err
				}
				return writeJSON(out, result)
			})
		},
	}
	cmd.PersistentFlags().StringVar(&flags.source, "source", "", "raw source override: parquet, gcs or table")
	cmd.Flags().StringVar(&flags.processDate, "process-date", "", "processing date (YYYY-MM-DD)")

	cmd.AddCommand(newBackfillCmd(open, out, &flags))
	return cmd
}

func newBackfillCmd(open openFunc, out io.Writer, root *rootFlags) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:           "backfill",
		Short:         "Rebuild every date in an inclusive range",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fromKey, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			toKey, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			if toKey < fromKey {
				return usagef("--to %s is before --from %s", toKey, fromKey)
			}
			if err := validateSource(root.source); err != nil {
				return err
			}

			return withService(cmd.Context(), open, root.source, func(ctx context.Context, svc domain.Service, log *zap.Logger) error {
				results, err := svc.Backfill(ctx, fromKey, toKey)
				if results != nil {
					if werr := writeJSON(out, results); werr != nil {
						return errors.Join(err, werr)
					}
				}
				if err != nil {
					log.Error("sales fact backfill failed",
						zap.String("from", fromKey.String()),
						zap.String("to", toKey.String()),
						zap.Error(err),
					)
					if errors.Is(err, domain.ErrInvalidBackfill) {
						return &usageError{err: err}
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first processing date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last processing date (YYYY-MM-DD)")
	return cmd
}

func parseDateFlag(name, value string) (calendar.DateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return calendar.NoData, usagef("--%s is required", name)
	}
	key, err := calendar.Parse(value)
	if err != nil {
		return calendar.NoData, usagef("--%s %q: expected YYYY-MM-DD", name, value)
	}
	return key, nil
}

func validateSource(source string) error {
	switch source {
	case "", config.SourceParquet, config.SourceGCS, config.SourceTable:
		return nil
	default:
		return usagef("--source %q: expected parquet, gcs or table", source)
	}
}

func withService(ctx context.Context, open openFunc, source string, fn func(context.Context, domain.Service, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc, log, closeFn, err := open(ctx, source)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	runErr := fn(ctx, svc, log)
	if closeFn != nil {
		if err := closeFn(context.Background()); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
	}
	return runErr
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
