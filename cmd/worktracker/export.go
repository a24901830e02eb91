package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"worktracker/internal/admin"
	"worktracker/internal/app"
	"worktracker/pkg/logger"
	"worktracker/pkg/utils"

	"github.com/spf13/cobra"
)

var (
	exportFrom string
	exportTo   string
	exportUser int64
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export time entries of a date range to CSV",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first day, YYYY-MM-DD (default: start of the admin range)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last day, YYYY-MM-DD (default: today)")
	exportCmd.Flags().Int64Var(&exportUser, "user", 0, "only entries of this user id")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", `output file, "-" for stdout (default time-entries-<today>.csv)`)
}

func runExport(cmd *cobra.Command, args []string) error {
	configMgr, _, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer logger.Close()

	now := time.Now()
	fromDay, toDay := utils.LastDays(now, configMgr.GetAdmin().DefaultRangeDays)
	from, to := fromDay.Format(utils.DateLayout), toDay.Format(utils.DateLayout)
	if exportFrom != "" {
		from = exportFrom
	}
	if exportTo != "" {
		to = exportTo
	}
	var userID *int64
	if exportUser != 0 {
		userID = &exportUser
	}
	filter, err := admin.ParseFilter(userID, from, to, time.Local)
	if err != nil {
		return err
	}

	a, err := app.New(configMgr, AppVersion)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		return err
	}

	rows, err := a.Dashboard().Load(ctx, filter)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	path := exportOut
	if path == "" {
		path = admin.ExportFilename(now)
	}
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	if err := a.Dashboard().ExportCSV(w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if path != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✅ 已导出 %d 条记录到 %s\n", len(rows), path)
	}
	return nil
}
