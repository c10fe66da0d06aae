package tld

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultAllowListURL   = "https://data.iana.org/TLD/tlds-alpha-by-domain.txt"
	defaultSyncInterval   = 24 * time.Hour
	defaultRequestTimeout = 15 * time.Second
)

// Syncer keeps a Store's snapshot synced with the IANA TLD list. An
// optional local file serves as the initial source for deployments that
// cannot reach the network at startup.
type Syncer struct {
	store    *Store
	url      string
	file     string
	interval time.Duration
	client   *http.Client
}

// NewSyncer constructs a TLD allow-list syncer.
func NewSyncer(store *Store, url, file string, interval time.Duration) *Syncer {
	if store == nil {
		return nil
	}
	if strings.TrimSpace(url) == "" {
		url = defaultAllowListURL
	}
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Syncer{
		store:    store,
		url:      url,
		file:     strings.TrimSpace(file),
		interval: interval,
		client:   &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Load populates the store before first use: the local file when
// configured, the remote list otherwise.
func (s *Syncer) Load(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("tld syncer: not initialized")
	}
	if s.file != "" {
		data, errRead := os.ReadFile(s.file)
		if errRead != nil {
			return fmt.Errorf("tld syncer: read file: %w", errRead)
		}
		names, errParse := ParseAllowList(data)
		if errParse != nil {
			return errParse
		}
		s.store.Replace(names)
		return nil
	}
	return s.SyncOnce(ctx)
}

// Start runs the refresh loop in the background.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("tld syncer started (interval=%s)", s.interval)
}

func (s *Syncer) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("tld syncer: refresh failed")
			}
		}
	}
}

// SyncOnce fetches the remote allow-list and swaps the store snapshot.
// A failed fetch leaves the previous snapshot in place.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("tld syncer: not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(requestCtx, http.MethodGet, s.url, nil)
	if errReq != nil {
		return fmt.Errorf("tld syncer: build request: %w", errReq)
	}

	resp, errDo := s.client.Do(req)
	if errDo != nil {
		return fmt.Errorf("tld syncer: request failed: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("tld syncer: close response body failed")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tld syncer: unexpected status %d", resp.StatusCode)
	}

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return fmt.Errorf("tld syncer: read response: %w", errRead)
	}

	names, errParse := ParseAllowList(body)
	if errParse != nil {
		return errParse
	}

	s.store.Replace(names)
	return nil
}
