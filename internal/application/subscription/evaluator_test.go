package subscription

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxypulse/proxypulse/internal/domain/server"
	"github.com/proxypulse/proxypulse/internal/infrastructure/xray"
	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

// stubRunner replays fixed delays keyed by server address.
type stubRunner struct {
	delays       map[string]float64
	batchSizes   []int
	siteReplies  map[string]bool
	siteBatches  int
	lastSiteURL  string
}

func (r *stubRunner) RunLatencyBatch(_ context.Context, batch []*server.Server) []xray.Result {
	r.batchSizes = append(r.batchSizes, len(batch))
	results := make([]xray.Result, 0, len(batch))
	for _, s := range batch {
		delay, ok := r.delays[s.Address]
		if !ok {
			delay = math.Inf(1)
		}
		results = append(results, xray.Result{Server: s, Delay: delay})
	}
	return results
}

func (r *stubRunner) RunSiteBatch(_ context.Context, targetURL string, batch []*server.Server) []*server.Server {
	r.siteBatches++
	r.lastSiteURL = targetURL
	var reachable []*server.Server
	for _, s := range batch {
		if r.siteReplies[s.Address] {
			reachable = append(reachable, s)
		}
	}
	return reachable
}

type stubGeo struct{}

func (stubGeo) Country(string) (string, string) { return "DE", "🇩🇪" }

func newTestEvaluator(t *testing.T, feedBody string, runner *stubRunner, probeCfg *sharedConfig.ProbeConfig) *Evaluator {
	t.Helper()
	log := logger.NewLogger()

	var urls []string
	if feedBody != "" {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(feedBody))
		}))
		t.Cleanup(srv.Close)
		urls = []string{srv.URL}
	}

	subCfg := &sharedConfig.SubscriptionConfig{URLs: urls}
	return NewEvaluator(subCfg, probeCfg, NewFetcher(NewParser(log), log), runner, stubGeo{}, log)
}

func TestComputeTopServers(t *testing.T) {
	feed := strings.Join([]string{
		"trojan://pw@slow.example.com:443#slow",
		"trojan://pw@dead.example.com:443#dead",
		"trojan://pw@fast.example.com:443#fast",
	}, "\n")
	runner := &stubRunner{delays: map[string]float64{
		"slow.example.com": 120.4,
		"dead.example.com": 9000,
		"fast.example.com": 50,
	}}
	e := newTestEvaluator(t, feed, runner, &sharedConfig.ProbeConfig{
		XrayPath: "/nonexistent/xray", BatchSize: 500, MaxDelayMS: 8000,
	})

	top := e.ComputeTopServers(context.Background())

	require.Len(t, top, 2, "delays above the cap are dropped")
	assert.Equal(t, "fast.example.com", top[0].Address)
	assert.Equal(t, "slow.example.com", top[1].Address)

	assert.Equal(t, 50, top[0].Delay)
	assert.Equal(t, 120, top[1].Delay, "fractional delays are rounded")
	assert.Equal(t, "DE", top[0].CountryCode)
	assert.Equal(t, "🇩🇪 DE 50ms", top[0].Remark)
	assert.True(t, strings.HasPrefix(top[0].RawURI, "trojan://pw@fast.example.com:443"),
		"raw uri is regenerated from the enriched descriptor")
	assert.Contains(t, top[0].RawURI, "DE%2050ms")
}

func TestComputeTopServersBatching(t *testing.T) {
	feed := strings.Join([]string{
		"trojan://pw@a.example.com:443#a",
		"trojan://pw@b.example.com:443#b",
		"trojan://pw@c.example.com:443#c",
	}, "\n")
	runner := &stubRunner{delays: map[string]float64{}}
	e := newTestEvaluator(t, feed, runner, &sharedConfig.ProbeConfig{
		XrayPath: "/nonexistent/xray", BatchSize: 2, MaxDelayMS: 8000,
	})

	top := e.ComputeTopServers(context.Background())

	assert.Equal(t, []int{2, 1}, runner.batchSizes)
	assert.Empty(t, top, "unreachable servers carry infinite delay")
	assert.NotNil(t, top, "an empty round is distinct from no round at all")
}

func TestComputeTopServersNoCandidates(t *testing.T) {
	runner := &stubRunner{}
	e := newTestEvaluator(t, "", runner, &sharedConfig.ProbeConfig{
		XrayPath: "/nonexistent/xray", BatchSize: 500, MaxDelayMS: 8000,
	})

	top := e.ComputeTopServers(context.Background())

	assert.NotNil(t, top)
	assert.Empty(t, top)
	assert.Empty(t, runner.batchSizes, "no engine run without candidates")
}

func TestFetchCandidatesDedupesAcrossFeed(t *testing.T) {
	feed := strings.Join([]string{
		"trojan://pw@a.example.com:443#first",
		"trojan://pw@a.example.com:443#dup",
		"trojan://pw@b.example.com:443#b",
	}, "\n")
	e := newTestEvaluator(t, feed, &stubRunner{}, &sharedConfig.ProbeConfig{BatchSize: 500})

	candidates := e.FetchCandidates(context.Background())

	require.Len(t, candidates, 2)
	assert.Equal(t, "first", candidates[0].Remark, "first occurrence wins")
}

func TestFetchCandidatesLowInternetCap(t *testing.T) {
	feed := strings.Join([]string{
		"trojan://pw@a.example.com:443#a",
		"trojan://pw@b.example.com:443#b",
		"trojan://pw@c.example.com:443#c",
	}, "\n")
	log := logger.NewLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)

	subCfg := &sharedConfig.SubscriptionConfig{
		URLs: []string{srv.URL}, LowInternetMode: true, LowInternetLimit: 2,
	}
	e := NewEvaluator(subCfg, &sharedConfig.ProbeConfig{BatchSize: 500},
		NewFetcher(NewParser(log), log), &stubRunner{}, stubGeo{}, log)

	candidates := e.FetchCandidates(context.Background())

	require.Len(t, candidates, 2)
	assert.Equal(t, "a.example.com", candidates[0].Address)
	assert.Equal(t, "b.example.com", candidates[1].Address)
}

func TestEvaluateSite(t *testing.T) {
	servers := []*server.Server{
		{Protocol: server.ProtocolTrojan, Address: "a.example.com", Port: 443, Password: "pw"},
		{Protocol: server.ProtocolTrojan, Address: "b.example.com", Port: 443, Password: "pw"},
		{Protocol: server.ProtocolTrojan, Address: "c.example.com", Port: 443, Password: "pw"},
	}
	runner := &stubRunner{siteReplies: map[string]bool{
		"a.example.com": true,
		"c.example.com": true,
	}}
	e := newTestEvaluator(t, "", runner, &sharedConfig.ProbeConfig{BatchSize: 2})

	reachable := e.EvaluateSite(context.Background(), "https://target.example.com", servers)

	assert.Equal(t, 2, runner.siteBatches)
	assert.Equal(t, "https://target.example.com", runner.lastSiteURL)
	require.Len(t, reachable, 2)
	assert.Equal(t, "a.example.com", reachable[0].Address)
	assert.Equal(t, "c.example.com", reachable[1].Address)
}
