// Package geoip resolves server addresses to country codes and flag emoji.
package geoip

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

// Resolver wraps a MaxMind country database. A Resolver without an open
// reader is valid and answers every lookup with the defaults.
type Resolver struct {
	cfg    *sharedConfig.GeoIPConfig
	reader *geoip2.Reader
	log    logger.Interface
}

func NewResolver(cfg *sharedConfig.GeoIPConfig, log logger.Interface) *Resolver {
	return &Resolver{cfg: cfg, log: log.Named("geoip")}
}

// Init downloads the database when it is missing and opens the reader.
// Failures are logged and leave the resolver in default-answer mode.
func (r *Resolver) Init(ctx context.Context) {
	if _, err := os.Stat(r.cfg.DBPath); os.IsNotExist(err) {
		r.log.Infow("geoip database missing, downloading", "path", r.cfg.DBPath)
		if err := r.download(ctx); err != nil {
			r.log.Warnw("geoip database download failed", "error", err)
			return
		}
	}

	reader, err := geoip2.Open(r.cfg.DBPath)
	if err != nil {
		r.log.Warnw("failed to open geoip database", "path", r.cfg.DBPath, "error", err)
		return
	}
	r.reader = reader
	r.log.Infow("geoip database loaded", "path", r.cfg.DBPath)
}

// Close releases the database reader.
func (r *Resolver) Close() {
	if r.reader != nil {
		r.reader.Close()
		r.reader = nil
	}
}

// Country resolves an address to (ISO-2 code, flag emoji). Hostnames are
// not resolved: a non-IP address yields the defaults.
func (r *Resolver) Country(address string) (string, string) {
	if r == nil || r.reader == nil {
		return server.DefaultCountryCode, server.DefaultFlag
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return server.DefaultCountryCode, server.DefaultFlag
	}

	record, err := r.reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return server.DefaultCountryCode, server.DefaultFlag
	}
	return record.Country.IsoCode, FlagEmoji(record.Country.IsoCode)
}

// FlagEmoji maps an ISO-2 country code onto its regional-indicator pair.
func FlagEmoji(countryCode string) string {
	var b strings.Builder
	for _, c := range strings.ToUpper(countryCode) {
		if c < 'A' || c > 'Z' {
			return server.DefaultFlag
		}
		b.WriteRune(0x1F1E6 + c - 'A')
	}
	return b.String()
}

func (r *Resolver) download(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.DownloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	file, err := os.Create(r.cfg.DBPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(r.cfg.DBPath)
		return err
	}
	return file.Close()
}
