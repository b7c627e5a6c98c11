package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/genofetch/internal/api"
	"github.com/dmitrijs2005/genofetch/internal/common"
)

// AwaitReady polls the download service until the file is staged and an
// access URL is available. While the service answers with a retry hint, the
// hint drives the wait; otherwise the poller falls back to its own backoff
// schedule. The accumulated wait is bounded by the configured maximum.
func (d *Downloader) AwaitReady(ctx context.Context, fileID string) (*api.URLResponse, error) {
	backoff := d.policy.NewBackoff()
	var waited time.Duration

	for {
		token, err := d.accessor.WorkOrderToken(ctx, fileID)
		if err != nil {
			return nil, err
		}

		urlResp, retryResp, err := d.api.ObjectInfo(ctx, d.dcsURL, fileID, token)
		switch {
		case err != nil:
			if errors.Is(err, common.ErrUnauthorized) || errors.Is(err, common.ErrStagingFailed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", common.ErrStagingFailed, err)
		case urlResp != nil:
			return urlResp, nil
		}

		delay := retryResp.RetryAfter
		if delay <= 0 {
			next, stop := backoff.Next()
			if stop {
				next = d.policy.BackoffMax
			}
			delay = next
		}

		if waited+delay > d.maxWait {
			return nil, fmt.Errorf("%w: file %s not staged after %s",
				common.ErrStagingTimeout, fileID, waited)
		}

		d.log.Info(ctx, "file is being staged", "file_id", fileID, "retry_in", delay)
		if err := d.sleep(ctx, delay); err != nil {
			return nil, err
		}
		waited += delay
	}
}
