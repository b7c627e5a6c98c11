package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/genofetch/internal/api"
	"github.com/dmitrijs2005/genofetch/internal/common"
	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/filex"
	"github.com/dmitrijs2005/genofetch/internal/integrity"
	"github.com/dmitrijs2005/genofetch/internal/logging"
	"github.com/dmitrijs2005/genofetch/internal/retry"
)

// objectAPI is the slice of the api client the downloader depends on.
type objectAPI interface {
	ObjectInfo(ctx context.Context, dcsURL, fileID, workOrderToken string) (*api.URLResponse, *api.RetryResponse, error)
	Envelope(ctx context.Context, dcsURL, fileID, workOrderToken string) ([]byte, error)
	ResolveAccessURL(ctx context.Context, raw string) (string, error)
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// tokenSource supplies work-order tokens per file.
type tokenSource interface {
	WorkOrderToken(ctx context.Context, fileID string) (string, error)
}

// Downloader transfers staged files part by part. A fixed-size worker pool
// bounds concurrency; one failed part cancels all in-flight siblings.
type Downloader struct {
	api      objectAPI
	accessor tokenSource
	dcsURL   string

	policy   retry.Policy
	maxWait  time.Duration
	partSize int64
	workers  int
	progress bool
	log      logging.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a downloader for one download service endpoint.
func New(apiClient *api.Client, accessor *api.WorkPackageAccessor, dcsURL string,
	cfg *config.Config, log logging.Logger) *Downloader {
	return &Downloader{
		api:      apiClient,
		accessor: accessor,
		dcsURL:   dcsURL,
		policy:   retry.PolicyFromConfig(cfg),
		maxWait:  cfg.MaxWaitTime,
		partSize: cfg.PartSize,
		workers:  cfg.MaxConcurrentDownloads,
		progress: true,
		log:      log,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ShowProgress toggles the terminal progress bar.
func (d *Downloader) ShowProgress(on bool) { d.progress = on }

// DownloadFile fetches fileID into finalPath. The artifact is assembled under
// a .part name and renamed only after every part arrived and the total size
// checks out; on any failure the partial file is removed.
func (d *Downloader) DownloadFile(ctx context.Context, fileID, finalPath string) (err error) {
	urlResp, err := d.AwaitReady(ctx, fileID)
	if err != nil {
		return err
	}

	token, err := d.accessor.WorkOrderToken(ctx, fileID)
	if err != nil {
		return err
	}
	envelope, err := d.api.Envelope(ctx, d.dcsURL, fileID, token)
	if err != nil {
		return err
	}
	envLen := int64(len(envelope))

	parts, err := PlanParts(urlResp.FileSize, d.partSize)
	if err != nil {
		return err
	}

	f, err := filex.CreatePart(finalPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		if err != nil {
			filex.Discard(finalPath)
		}
	}()

	if _, err = f.WriteAt(envelope, 0); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}

	d.log.Info(ctx, "downloading file",
		"file_id", fileID, "size", urlResp.FileSize, "parts", len(parts), "workers", d.workers)

	bar := d.newBar(urlResp.FileSize, fileID)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, part := range parts {
		part := part
		g.Go(func() error {
			ferr := d.fetchPart(gctx, fileID, part, f, envLen, bar)
			if ferr == nil || errors.Is(ferr, context.Canceled) {
				return ferr
			}
			return &common.PartFailedError{Index: part.Index, Err: ferr}
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}
	_ = bar.Finish()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	if !integrity.VerifyTotal(info.Size(), envLen+urlResp.FileSize) {
		err = fmt.Errorf("%w: artifact is %d bytes, expected %d",
			common.ErrSizeMismatch, info.Size(), envLen+urlResp.FileSize)
		return err
	}

	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err = filex.Finish(finalPath); err != nil {
		return err
	}
	d.log.Info(ctx, "download complete", "file_id", fileID, "path", finalPath)
	return nil
}

// fetchPart downloads one byte range and writes it at its offset in the
// artifact, shifted past the envelope. The access URL is re-resolved per part
// so short-lived presigned URLs cannot expire mid-transfer.
func (d *Downloader) fetchPart(ctx context.Context, fileID string, part PartRange,
	f *os.File, envLen int64, bar *progressbar.ProgressBar) error {
	token, err := d.accessor.WorkOrderToken(ctx, fileID)
	if err != nil {
		return err
	}
	urlResp, retryResp, err := d.api.ObjectInfo(ctx, d.dcsURL, fileID, token)
	if err != nil {
		return err
	}
	if retryResp != nil {
		return fmt.Errorf("%w: file %s left the staged state mid-download", common.ErrStagingFailed, fileID)
	}

	accessURL, err := d.api.ResolveAccessURL(ctx, urlResp.DownloadURL)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, accessURL, nil)
	if err != nil {
		return fmt.Errorf("build range request: %w", err)
	}
	req.Header.Set("Range", part.RangeHeader())

	resp, err := d.api.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch range %s: %w", part.RangeHeader(), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response %s for range %s", resp.Status, part.RangeHeader())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read range %s: %w", part.RangeHeader(), err)
	}
	if int64(len(body)) != part.Len() {
		return fmt.Errorf("range %s returned %d bytes, expected %d",
			part.RangeHeader(), len(body), part.Len())
	}

	if !integrity.VerifyPart(body, partChecksum(resp.Header)) {
		return &common.ChecksumMismatchError{Index: part.Index}
	}

	if _, err := f.WriteAt(body, envLen+part.Start); err != nil {
		return fmt.Errorf("write part %d: %w", part.Index, err)
	}
	_ = bar.Add(len(body))

	d.log.Debug(ctx, "part downloaded", "file_id", fileID, "part", part.Index, "bytes", len(body))
	return nil
}

// partChecksum picks the strongest checksum header describing the returned
// range. Whole-object ETags are skipped; they do not describe a range body.
func partChecksum(h http.Header) string {
	if v := h.Get("X-Amz-Checksum-Sha256"); v != "" {
		return v
	}
	return h.Get("Content-Md5")
}

func (d *Downloader) newBar(total int64, fileID string) *progressbar.ProgressBar {
	if !d.progress {
		return progressbar.DefaultBytesSilent(total)
	}
	return progressbar.DefaultBytes(total, "downloading "+fileID)
}
