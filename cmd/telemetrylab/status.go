package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/config"
	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/pid"
	"codeberg.org/mutker/telemetrylab/internal/telemetry"
	"github.com/spf13/cobra"
)

const statusTimeout = 5 * time.Second

var statusRows int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running instance.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		return showStatus(cmd.Context(), cmd.OutOrStdout(), cfg, statusRows)
	},
}

func showStatus(ctx context.Context, out io.Writer, cfg *config.Config, rows int) error {
	if !pid.Running(cfg.PIDFile) {
		fmt.Fprintln(out, "telemetrylab is not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	snap, err := fetchStatus(ctx, "http://"+cfg.Server.Listen+"/status")
	if err != nil {
		return err
	}

	return renderStatus(out, snap, rows)
}

func init() {
	statusCmd.Flags().IntVar(&statusRows, "rows", monitorRows, "Number of recent cycles to show (0 for all)")
}

func fetchStatus(ctx context.Context, url string) (telemetry.Snapshot, error) {
	errFactory := errors.New()
	var snap telemetry.Snapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snap, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, errFactory.Wrap(errors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, errFactory.WithData(errors.ErrUnavailable, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	return snap, nil
}
