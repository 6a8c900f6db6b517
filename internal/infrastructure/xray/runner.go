package xray

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/proxy"

	sharedConfig "github.com/proxypulse/proxypulse/internal/shared/config"
	"github.com/proxypulse/proxypulse/internal/shared/logger"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

const (
	readinessTimeout = 3 * time.Second
	readinessPoll    = 100 * time.Millisecond
	shutdownGrace    = 2 * time.Second
)

// Result pairs a descriptor with its measured latency in milliseconds.
// Failed probes carry +Inf.
type Result struct {
	Server *server.Server
	Delay  float64
}

// Runner spawns one engine process per batch and drives concurrent probes
// through its SOCKS inbounds. Exactly one engine exists per batch; it is
// terminated before the runner returns, and the temp config file is removed
// on every exit path.
type Runner struct {
	cfg *sharedConfig.ProbeConfig
	log logger.Interface
}

func NewRunner(cfg *sharedConfig.ProbeConfig, log logger.Interface) *Runner {
	return &Runner{cfg: cfg, log: log.Named("xray")}
}

// RunLatencyBatch measures the end-to-end latency of every candidate in the
// batch against the configured test URL.
func (r *Runner) RunLatencyBatch(ctx context.Context, batch []*server.Server) []Result {
	delays := r.runBatch(ctx, batch, r.latencyProbe)

	results := make([]Result, len(batch))
	for i, s := range batch {
		results[i] = Result{Server: s, Delay: delays[i]}
	}
	return results
}

// RunSiteBatch probes every candidate in the batch against targetURL and
// returns the candidates that could reach it.
func (r *Runner) RunSiteBatch(ctx context.Context, targetURL string, batch []*server.Server) []*server.Server {
	delays := r.runBatch(ctx, batch, func(ctx context.Context, port int) float64 {
		return r.siteProbe(ctx, port, targetURL)
	})

	var reachable []*server.Server
	for i, s := range batch {
		if !math.IsInf(delays[i], 1) {
			reachable = append(reachable, s)
		}
	}
	return reachable
}

type probeFunc func(ctx context.Context, port int) float64

func (r *Runner) runBatch(ctx context.Context, batch []*server.Server, probe probeFunc) []float64 {
	delays := make([]float64, len(batch))
	for i := range delays {
		delays[i] = math.Inf(1)
	}
	if len(batch) == 0 {
		return delays
	}

	configPath, err := r.writeConfig(batch)
	if err != nil {
		r.log.Errorw("failed to write engine config", "error", err)
		return delays
	}
	defer os.Remove(configPath)

	cmd := exec.CommandContext(ctx, r.cfg.XrayPath, "-c", configPath)
	cmd.Env = os.Environ()
	if info, err := os.Stat(r.cfg.XrayAssetsPath); err == nil && info.IsDir() {
		cmd.Env = append(cmd.Env, "XRAY_LOCATION_ASSET="+r.cfg.XrayAssetsPath)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		r.log.Errorw("failed to start engine", "path", r.cfg.XrayPath, "error", err)
		return delays
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	defer r.shutdown(cmd, waitErr)

	// The first inbound accepting connections means the engine is up.
	r.waitForPort(ctx, r.cfg.BasePort)

	select {
	case <-waitErr:
		r.log.Errorw("engine exited before probing",
			"stdout", stdout.String(), "stderr", stderr.String())
		// Re-arm so shutdown does not block on a drained channel.
		waitErr <- nil
		return delays
	default:
	}

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delays[i] = probe(ctx, r.cfg.BasePort+i)
		}(i)
	}
	wg.Wait()

	return delays
}

func (r *Runner) writeConfig(batch []*server.Server) (string, error) {
	file, err := os.CreateTemp("", "xray-batch-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create temp config: %w", err)
	}

	cfg := BuildConfig(batch, r.cfg.BasePort)
	if err := json.NewEncoder(file).Encode(cfg); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", fmt.Errorf("failed to encode engine config: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

func (r *Runner) waitForPort(ctx context.Context, port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(readinessTimeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		conn, err := net.DialTimeout("tcp", addr, readinessPoll)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(readinessPoll)
	}
	return false
}

// shutdown terminates the engine: SIGTERM, up to 2s grace, then SIGKILL.
func (r *Runner) shutdown(cmd *exec.Cmd, waitErr chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitErr:
	case <-time.After(shutdownGrace):
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

// latencyProbe issues a HEAD request through the local SOCKS inbound and
// reports elapsed milliseconds on a 2xx response. Redirects are not
// followed; anything but 2xx is a failure.
func (r *Runner) latencyProbe(ctx context.Context, port int) float64 {
	client, err := r.socksClient(port, false)
	if err != nil {
		return math.Inf(1)
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, r.testTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.cfg.LatencyTestURL, nil)
	if err != nil {
		return math.Inf(1)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return math.Inf(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return math.Inf(1)
	}
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// siteProbe issues a HEAD request for targetURL through the local SOCKS
// inbound, following redirects. Success is any final status below 400.
func (r *Runner) siteProbe(ctx context.Context, port int, targetURL string) float64 {
	client, err := r.socksClient(port, true)
	if err != nil {
		return math.Inf(1)
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, r.testTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return math.Inf(1)
	}

	resp, err := client.Do(req)
	if err != nil {
		return math.Inf(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return math.Inf(1)
	}
	return 0
}

func (r *Runner) socksClient(port int, followRedirects bool) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", fmt.Sprintf("127.0.0.1:%d", port), nil, proxy.Direct)
	if err != nil {
		return nil, err
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks dialer does not support context")
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext:       contextDialer.DialContext,
			DisableKeepAlives: true,
		},
		Timeout: r.testTimeout(),
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

func (r *Runner) testTimeout() time.Duration {
	return time.Duration(r.cfg.TestTimeout) * time.Second
}
