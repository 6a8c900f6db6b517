package subscription

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"

	"github.com/proxypulse/proxypulse/internal/domain/server"
	"github.com/proxypulse/proxypulse/internal/infrastructure/xray"
)

// ProbeRunner drives one engine process per batch.
type ProbeRunner interface {
	RunLatencyBatch(ctx context.Context, batch []*server.Server) []xray.Result
	RunSiteBatch(ctx context.Context, targetURL string, batch []*server.Server) []*server.Server
}

// GeoResolver attributes an address to (ISO-2 code, flag emoji).
type GeoResolver interface {
	Country(address string) (string, string)
}

// Evaluator runs the full pipeline: fetch, dedupe, batched latency probing,
// ranking, and enrichment.
type Evaluator struct {
	subCfg   *sharedConfig.SubscriptionConfig
	probeCfg *sharedConfig.ProbeConfig
	fetcher  *Fetcher
	runner   ProbeRunner
	geo      GeoResolver
	log      logger.Interface
}

func NewEvaluator(
	subCfg *sharedConfig.SubscriptionConfig,
	probeCfg *sharedConfig.ProbeConfig,
	fetcher *Fetcher,
	runner ProbeRunner,
	geo GeoResolver,
	log logger.Interface,
) *Evaluator {
	return &Evaluator{
		subCfg:   subCfg,
		probeCfg: probeCfg,
		fetcher:  fetcher,
		runner:   runner,
		geo:      geo,
		log:      log.Named("evaluator"),
	}
}

// FetchCandidates downloads all feeds, deduplicates by fingerprint with
// first-seen-wins, and applies the low-internet cap.
func (e *Evaluator) FetchCandidates(ctx context.Context) []*server.Server {
	all := e.fetcher.FetchAll(ctx, e.subCfg.URLs)
	unique := server.Dedupe(all)
	e.log.Infow("fetched candidates", "total", len(all), "unique", len(unique))

	if e.subCfg.LowInternetMode && len(unique) > e.subCfg.LowInternetLimit {
		e.log.Infow("low internet mode, truncating candidates",
			"limit", e.subCfg.LowInternetLimit)
		unique = unique[:e.subCfg.LowInternetLimit]
	}
	return unique
}

// ComputeTopServers evaluates every candidate and returns the working set:
// enriched descriptors with delay at most MaxDelayMS, sorted ascending.
func (e *Evaluator) ComputeTopServers(ctx context.Context) []*server.Server {
	if _, err := os.Stat(e.probeCfg.XrayPath); err != nil {
		e.log.Warnw("engine binary not found", "path", e.probeCfg.XrayPath)
	}

	candidates := e.FetchCandidates(ctx)
	if len(candidates) == 0 {
		// Distinct from "never evaluated": an empty round still counts.
		return []*server.Server{}
	}

	var results []xray.Result
	for i, batch := range chunk(candidates, e.probeCfg.BatchSize) {
		if ctx.Err() != nil {
			return nil
		}
		e.log.Infow("testing batch", "batch", i+1, "size", len(batch))
		results = append(results, e.runner.RunLatencyBatch(ctx, batch)...)
	}

	maxDelay := float64(e.probeCfg.MaxDelayMS)
	working := results[:0]
	for _, res := range results {
		if res.Delay <= maxDelay {
			working = append(working, res)
		}
	}
	sort.SliceStable(working, func(i, j int) bool { return working[i].Delay < working[j].Delay })
	e.log.Infow("latency round finished", "working", len(working))

	enriched := make([]*server.Server, 0, len(working))
	for _, res := range working {
		enriched = append(enriched, e.enrich(res))
	}
	return enriched
}

// EvaluateSite probes the given servers against targetURL in sequential
// batches and returns those that reached it.
func (e *Evaluator) EvaluateSite(ctx context.Context, targetURL string, servers []*server.Server) []*server.Server {
	var reachable []*server.Server
	for i, batch := range chunk(servers, e.probeCfg.BatchSize) {
		if ctx.Err() != nil {
			break
		}
		e.log.Infow("testing batch against site", "batch", i+1, "site", targetURL)
		reachable = append(reachable, e.runner.RunSiteBatch(ctx, targetURL, batch)...)
	}
	return reachable
}

// enrich clones the descriptor and stamps delay, geo attribution, the
// display remark, and a regenerated raw URI.
func (e *Evaluator) enrich(res xray.Result) *server.Server {
	s := res.Server.Clone()
	s.Delay = int(math.Round(res.Delay))

	code, flag := server.DefaultCountryCode, server.DefaultFlag
	if e.geo != nil {
		code, flag = e.geo.Country(s.Address)
	}
	s.CountryCode = code
	s.Flag = flag
	s.Remark = fmt.Sprintf("%s %s %dms", flag, code, s.Delay)
	s.RawURI = GenerateURI(s)
	return s
}

func chunk(servers []*server.Server, size int) [][]*server.Server {
	if size <= 0 {
		size = len(servers)
	}
	var batches [][]*server.Server
	for start := 0; start < len(servers); start += size {
		end := start + size
		if end > len(servers) {
			end = len(servers)
		}
		batches = append(batches, servers[start:end])
	}
	return batches
}
