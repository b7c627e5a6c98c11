// Package transfer wires the discovery, token, download and decryption pieces
// into the operations the CLI exposes: fetch encrypted artifacts, decrypt
// them, and encrypt local files for upload.
package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/genofetch/internal/api"
	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/download"
	"github.com/dmitrijs2005/genofetch/internal/filex"
	"github.com/dmitrijs2005/genofetch/internal/httpcache"
	"github.com/dmitrijs2005/genofetch/internal/logging"
	"github.com/dmitrijs2005/genofetch/internal/retry"
)

// EncryptedSuffix marks downloaded artifacts that still carry their
// Crypt4GH envelope.
const EncryptedSuffix = ".c4gh"

// Credentials identifies the user against the backend services.
type Credentials struct {
	// WorkPackageID and AccessToken come from the work package the user
	// was granted.
	WorkPackageID string
	AccessToken   string

	// The Crypt4GH key pair the envelopes and work-order tokens are
	// addressed to.
	PublicKey  [32]byte
	PrivateKey [32]byte
}

// Service runs downloads against one discovered set of backend endpoints.
type Service struct {
	cfg        *config.Config
	log        logging.Logger
	api        *api.Client
	cache      *httpcache.Cache
	downloader *download.Downloader
	outputDir  string
}

// New discovers the backend endpoints through the well-known-value service
// and assembles the full client stack: one retry engine and one response
// cache shared by every outbound call of this session.
func New(ctx context.Context, cfg *config.Config, creds Credentials, log logging.Logger) (*Service, error) {
	log = log.With("session_id", uuid.NewString())

	outputDir, err := filex.EnsureDir(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	cache := httpcache.FromConfig(cfg, log)
	engine := retry.NewEngine(retry.PolicyFromConfig(cfg), log)
	client := api.NewClient(nil, engine, cache, log)

	dcsURL, err := client.WellKnownValue(ctx, cfg.WKVSAPIURL, "dcs_api_url")
	if err != nil {
		return nil, fmt.Errorf("discover download service: %w", err)
	}
	wpsURL, err := client.WellKnownValue(ctx, cfg.WKVSAPIURL, "wps_api_url")
	if err != nil {
		return nil, fmt.Errorf("discover work package service: %w", err)
	}
	log.Debug(ctx, "discovered backend endpoints", "dcs", dcsURL, "wps", wpsURL)

	accessor := api.NewWorkPackageAccessor(client, wpsURL, creds.WorkPackageID,
		creds.AccessToken, creds.PublicKey, creds.PrivateKey, log)

	return &Service{
		cfg:        cfg,
		log:        log,
		api:        client,
		cache:      cache,
		downloader: download.New(client, accessor, dcsURL, cfg, log),
		outputDir:  outputDir,
	}, nil
}

// UseS3Presigner enables direct fetching from object stores that hand out
// s3:// access URLs.
func (s *Service) UseS3Presigner(p api.Presigner) { s.api.SetPresigner(p) }

// ShowProgress toggles the terminal progress bar.
func (s *Service) ShowProgress(on bool) { s.downloader.ShowProgress(on) }

// Download fetches one file into the output directory as <fileID>.c4gh and
// returns the final path. An already existing output file is an error, never
// overwritten.
func (s *Service) Download(ctx context.Context, fileID string) (string, error) {
	dest := filepath.Join(s.outputDir, fileID+EncryptedSuffix)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("output file %s already exists", dest)
	}
	if err := s.downloader.DownloadFile(ctx, fileID, dest); err != nil {
		return "", fmt.Errorf("download %s: %w", fileID, err)
	}
	return dest, nil
}

// DownloadAll fetches the given files one after another. Failures do not
// stop the remaining transfers; all errors are reported together.
func (s *Service) DownloadAll(ctx context.Context, fileIDs []string) error {
	var errs []error
	for _, fileID := range fileIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Download(ctx, fileID); err != nil {
			s.log.Error(ctx, "download failed", "file_id", fileID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServerPublicKey fetches the backend's Crypt4GH public key from the
// well-known-value service, for encrypting files addressed to the backend.
func (s *Service) ServerPublicKey(ctx context.Context) ([32]byte, error) {
	var key [32]byte
	v, err := s.api.WellKnownValue(ctx, s.cfg.WKVSAPIURL, "crypt4gh_public_key")
	if err != nil {
		return key, fmt.Errorf("discover server public key: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(raw) != len(key) {
		return key, fmt.Errorf("server public key is not a base64 X25519 key")
	}
	copy(key[:], raw)
	return key, nil
}

// Close releases session resources.
func (s *Service) Close() {
	s.cache.Purge()
}
