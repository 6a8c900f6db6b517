package subscription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/proxypulse/proxypulse/internal/domain/server"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

const fetchTimeout = 30 * time.Second

// Fetcher retrieves subscription bodies and turns them into descriptors.
// Feeds fail independently: one unreachable or garbled URL never poisons the
// rest of the round.
type Fetcher struct {
	parser *Parser
	client *http.Client
	log    logger.Interface
}

func NewFetcher(parser *Parser, log logger.Interface) *Fetcher {
	return &Fetcher{
		parser: parser,
		client: &http.Client{Timeout: fetchTimeout},
		log:    log.Named("fetcher"),
	}
}

// FetchAll downloads every feed concurrently and returns the concatenation
// of per-feed descriptor lists in input order. No deduplication happens
// here; the evaluator owns fingerprint dedup so that first-seen-wins holds
// across feeds.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []*server.Server {
	perFeed := make([][]*server.Server, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			servers, err := f.fetchOne(ctx, u)
			if err != nil {
				f.log.Warnw("failed to fetch subscription", "url", u, "error", err)
				return
			}
			f.log.Infow("fetched subscription", "url", u, "servers", len(servers))
			perFeed[i] = servers
		}(i, u)
	}
	wg.Wait()

	var all []*server.Server
	for _, batch := range perFeed {
		all = append(all, batch...)
	}
	return all
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) ([]*server.Server, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	text := string(body)
	if strings.HasPrefix(strings.TrimSpace(text), "<") {
		return nil, fmt.Errorf("content is HTML, not a subscription")
	}

	// Feeds come either Base64-wrapped or as plain newline-separated URIs.
	if decoded, err := decodeBase64Loose(text); err == nil {
		text = string(decoded)
	}

	var servers []*server.Server
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s := f.parser.Parse(line); s != nil {
			servers = append(servers, s)
		}
	}
	return servers, nil
}
