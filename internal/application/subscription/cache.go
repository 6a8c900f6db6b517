package subscription

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/errors"
	"github.com/proxypulse/proxypulse/internal/shared/logger"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

// WorkingServersKey is the persistence key for the enriched working set.
const WorkingServersKey = "working_servers"

const topServerCount = 25

// Pipeline is the probe-producing side of the evaluator, admitted through
// the single-flight lock.
type Pipeline interface {
	ComputeTopServers(ctx context.Context) []*server.Server
	EvaluateSite(ctx context.Context, targetURL string, servers []*server.Server) []*server.Server
}

// Store persists the working set between restarts.
type Store interface {
	SaveServers(ctx context.Context, key string, servers []*server.Server, ttl time.Duration) error
	LoadServers(ctx context.Context, key string) ([]*server.Server, error)
}

// Publisher pushes one subscription file to a remote repository.
type Publisher interface {
	UpdateFileAndPush(ctx context.Context, filename, content string) error
}

type siteEntry struct {
	insertedAt time.Time
	servers    []*server.Server
}

// Service owns the result caches and the admission control around probe
// runs. cacheMu guards the cache fields and is held only for copy/swap;
// processing is the process-wide single-flight lock over everything that
// spawns the engine.
type Service struct {
	subCfg    *sharedConfig.SubscriptionConfig
	cacheCfg  *sharedConfig.CacheConfig
	githubCfg *sharedConfig.GitHubConfig
	evaluator Pipeline
	store     Store
	publisher Publisher
	log       logger.Interface

	processing sync.Mutex

	cacheMu    sync.Mutex
	cacheAll   []*server.Server // nil until the first successful refresh
	cacheTop25 []*server.Server

	siteMu    sync.Mutex
	siteCache map[string]siteEntry
}

func NewService(
	subCfg *sharedConfig.SubscriptionConfig,
	cacheCfg *sharedConfig.CacheConfig,
	githubCfg *sharedConfig.GitHubConfig,
	evaluator Pipeline,
	store Store,
	pub Publisher,
	log logger.Interface,
) *Service {
	return &Service{
		subCfg:    subCfg,
		cacheCfg:  cacheCfg,
		githubCfg: githubCfg,
		evaluator: evaluator,
		store:     store,
		publisher: pub,
		log:       log.Named("cache"),
		siteCache: make(map[string]siteEntry),
	}
}

// Run hydrates the caches from the store and then refreshes them
// periodically until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.hydrate(ctx)

	interval := time.Duration(s.cacheCfg.IntervalSeconds) * time.Second
	for {
		s.log.Infow("periodic cache update started")
		s.refresh(ctx)

		select {
		case <-ctx.Done():
			s.log.Infow("refresh loop stopped")
			return
		case <-time.After(interval):
		}
	}
}

func (s *Service) hydrate(ctx context.Context) {
	if s.store == nil {
		return
	}
	cached, err := s.store.LoadServers(ctx, WorkingServersKey)
	if err != nil {
		s.log.Warnw("failed to hydrate caches from store", "error", err)
		return
	}
	if len(cached) == 0 {
		return
	}

	s.cacheMu.Lock()
	s.cacheAll = cached
	s.cacheTop25 = head(cached, topServerCount)
	s.cacheMu.Unlock()
	s.log.Infow("hydrated caches from store", "servers", len(cached))
}

// refresh runs one full evaluation under the single-flight lock. A tick
// that finds a probe run already in flight is skipped, not queued.
func (s *Service) refresh(ctx context.Context) {
	if !s.processing.TryLock() {
		s.log.Infow("skipping refresh, a probe run is already in progress")
		return
	}
	defer s.processing.Unlock()

	top := s.evaluator.ComputeTopServers(ctx)
	if ctx.Err() != nil {
		return
	}

	s.cacheMu.Lock()
	s.cacheAll = top
	s.cacheTop25 = head(top, topServerCount)
	s.cacheMu.Unlock()
	s.log.Infow("caches updated", "servers", len(top))

	if s.store != nil {
		if err := s.store.SaveServers(ctx, WorkingServersKey, top, 0); err != nil {
			s.log.Warnw("failed to persist working set", "error", err)
		}
	}

	s.publishWorkingSet(ctx, top)
	s.precheckSites(ctx, top)
}

func (s *Service) publishWorkingSet(ctx context.Context, servers []*server.Server) {
	if s.publisher == nil || !s.githubCfg.PushEnabled || len(servers) == 0 {
		return
	}
	if err := s.publisher.UpdateFileAndPush(ctx, s.githubCfg.Filename, JoinRawURIs(servers)); err != nil {
		s.log.Warnw("failed to publish working set", "error", err)
	}
}

// precheckSites warms the site cache for each configured target and
// optionally publishes a per-site subscription file.
func (s *Service) precheckSites(ctx context.Context, servers []*server.Server) {
	if len(s.subCfg.PrecheckSites) == 0 || len(servers) == 0 {
		return
	}

	for _, site := range s.subCfg.PrecheckSites {
		if ctx.Err() != nil {
			return
		}
		s.log.Infow("prechecking site", "site", site)
		reachable := s.evaluator.EvaluateSite(ctx, site, servers)

		s.siteMu.Lock()
		s.siteCache[site] = siteEntry{insertedAt: time.Now(), servers: reachable}
		s.siteMu.Unlock()
		s.log.Infow("site cache updated", "site", site, "reachable", len(reachable))

		if s.publisher != nil && s.githubCfg.PushEnabled && len(reachable) > 0 {
			filename := siteFilename(site)
			if err := s.publisher.UpdateFileAndPush(ctx, filename, JoinRawURIs(reachable)); err != nil {
				s.log.Warnw("failed to publish site subscription", "site", site, "error", err)
			}
		}
	}
}

// Top25 returns the cached head of the working set, or nil when no refresh
// has completed yet.
func (s *Service) Top25() []*server.Server {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return copyServers(s.cacheTop25)
}

// AllCached returns the full cached working set, or nil when no refresh has
// completed yet.
func (s *Service) AllCached() []*server.Server {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return copyServers(s.cacheAll)
}

// SiteServers returns the servers able to reach targetURL, probing the
// cached working set when the site-cache entry is missing or stale.
// Distinct failures: unavailable when the caches were never populated, busy
// when a probe run is already in flight.
func (s *Service) SiteServers(ctx context.Context, targetURL string) ([]*server.Server, error) {
	s.siteMu.Lock()
	entry, ok := s.siteCache[targetURL]
	s.siteMu.Unlock()
	if ok && time.Since(entry.insertedAt) < s.siteTTL() {
		return copyServers(entry.servers), nil
	}

	candidates := s.AllCached()
	if candidates == nil {
		return nil, errors.NewUnavailableError("cache is empty, wait for it to populate")
	}

	reachable, err := s.probeSite(ctx, targetURL, candidates)
	if err != nil {
		return nil, err
	}

	s.siteMu.Lock()
	s.siteCache[targetURL] = siteEntry{insertedAt: time.Now(), servers: reachable}
	s.siteMu.Unlock()

	return copyServers(reachable), nil
}

// probeSite admits one site probe through the single-flight lock. The
// deferred unlock keeps the lock safe even when the pipeline panics.
func (s *Service) probeSite(ctx context.Context, targetURL string, candidates []*server.Server) ([]*server.Server, error) {
	if !s.processing.TryLock() {
		return nil, errors.NewBusyError("a test is already in progress")
	}
	defer s.processing.Unlock()
	return s.evaluator.EvaluateSite(ctx, targetURL, candidates), nil
}

// Live runs a fresh evaluation and returns the head of the result without
// touching the caches. Returns busy when a probe run is already in flight.
func (s *Service) Live(ctx context.Context) ([]*server.Server, error) {
	if !s.processing.TryLock() {
		return nil, errors.NewBusyError("a test is already in progress")
	}
	defer s.processing.Unlock()

	top := s.evaluator.ComputeTopServers(ctx)
	return head(top, topServerCount), nil
}

func (s *Service) siteTTL() time.Duration {
	return time.Duration(s.cacheCfg.SiteTTLSeconds) * time.Second
}

func head(servers []*server.Server, n int) []*server.Server {
	if servers == nil {
		return nil
	}
	if len(servers) > n {
		return servers[:n]
	}
	return servers
}

func copyServers(servers []*server.Server) []*server.Server {
	if servers == nil {
		return nil
	}
	out := make([]*server.Server, len(servers))
	copy(out, servers)
	return out
}

// JoinRawURIs renders a server list as the newline-separated subscription
// body used by the publisher and the raw HTTP views.
func JoinRawURIs(servers []*server.Server) string {
	uris := make([]string, 0, len(servers))
	for _, s := range servers {
		uris = append(uris, s.RawURI)
	}
	return strings.Join(uris, "\n")
}

// siteFilename derives the published filename for a site, dots replaced by
// underscores.
func siteFilename(site string) string {
	parsed, err := url.Parse(site)
	host := ""
	if err == nil {
		host = parsed.Hostname()
	}
	if host == "" {
		host = "unknown_site"
	}
	return strings.ReplaceAll(host, ".", "_") + ".txt"
}
