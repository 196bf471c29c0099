// Package uploader implements the Report Uploader (C1): a single-threaded
// drain of the report-files queue that forwards each report to the Bridge.
// Grounded on spec.md §4.6; the FIFO/ordering guarantee is provided by
// whatever enqueued the reports (pkg/reports), not by this package.
package uploader

import (
	"context"

	"github.com/klever-verify/core/pkg/client"
	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/queue"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// Uploader drains a report queue and forwards every report to the Bridge.
type Uploader struct {
	queue  *queue.Queue[types.Report]
	bridge *client.Client
	logger zerolog.Logger
}

// New creates an Uploader reading from q and forwarding through bridge.
func New(q *queue.Queue[types.Report], bridge *client.Client) *Uploader {
	return &Uploader{
		queue:  q,
		bridge: bridge,
		logger: log.WithComponent("uploader"),
	}
}

// Run drains the queue until a sentinel arrives or ctx is cancelled. It
// returns the first transport error encountered; the caller (the
// supervisor) treats any non-nil return as the uploader's non-zero exit and
// cancels the job.
func (u *Uploader) Run(ctx context.Context) error {
	for {
		report, ok := u.queue.Get(ctx)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			u.logger.Info().Msg("report queue drained, uploader exiting")
			return nil
		}

		var archive []byte
		if len(report.Files) > 0 {
			var err error
			archive, err = archiveFiles(report.Files)
			if err != nil {
				u.logger.Error().Err(err).Str("identifier", report.Identifier).Msg("failed to build report archive")
				return err
			}
		}

		if err := u.bridge.UploadReport(ctx, report, archive); err != nil {
			u.logger.Error().Err(err).Str("identifier", report.Identifier).Msg("report upload failed")
			return err
		}
	}
}
