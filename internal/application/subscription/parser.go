// Package subscription implements the proxy evaluation pipeline: feed
// fetching, URI parsing and regeneration, latency ranking, and the result
// caches behind the HTTP surface.
package subscription

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/proxypulse/proxypulse/internal/domain/server"
	"github.com/proxypulse/proxypulse/internal/shared/logger"
)

// Parser decodes proxy share URIs into canonical descriptors. Malformed
// lines yield nil; parsing never fails the surrounding feed.
type Parser struct {
	log logger.Interface
}

func NewParser(log logger.Interface) *Parser {
	return &Parser{log: log.Named("parser")}
}

// Parse dispatches on the URI scheme. Unknown schemes, including ssr://,
// are skipped silently.
func (p *Parser) Parse(uri string) *server.Server {
	switch {
	case strings.HasPrefix(uri, "vless://"):
		return p.parseVLESS(uri)
	case strings.HasPrefix(uri, "vmess://"):
		return p.parseVMess(uri)
	case strings.HasPrefix(uri, "trojan://"):
		return p.parseTrojan(uri)
	case strings.HasPrefix(uri, "ss://"):
		return p.parseShadowsocks(uri)
	case strings.HasPrefix(uri, "hy2://"):
		return p.parseHysteria2(uri)
	default:
		return nil
	}
}

func (p *Parser) parseVLESS(uri string) *server.Server {
	u, err := url.Parse(uri)
	if err != nil {
		p.log.Debugw("skipping malformed vless uri", "error", err)
		return nil
	}
	port := parsePort(u.Port())
	if u.User == nil || u.User.Username() == "" || u.Hostname() == "" || port == 0 {
		p.log.Debugw("skipping malformed vless uri", "uri", uri)
		return nil
	}

	q := u.Query()
	return &server.Server{
		Protocol:   server.ProtocolVLESS,
		Remark:     u.Fragment,
		Address:    u.Hostname(),
		Port:       port,
		VLESSID:    u.User.Username(),
		Encryption: queryOr(q, "encryption", "none"),
		Security:   queryOr(q, "security", "none"),
		Type:       queryOr(q, "type", "tcp"),
		Host:       q.Get("host"),
		Path:       q.Get("path"),
		SNI:        q.Get("sni"),
		Flow:       q.Get("flow"),
		FP:         q.Get("fp"),
		PublicKey:  q.Get("pbk"),
		ShortID:    q.Get("sid"),
		RawURI:     uri,
	}
}

func (p *Parser) parseTrojan(uri string) *server.Server {
	u, err := url.Parse(uri)
	if err != nil {
		p.log.Debugw("skipping malformed trojan uri", "error", err)
		return nil
	}
	port := parsePort(u.Port())
	if u.User == nil || u.User.Username() == "" || u.Hostname() == "" || port == 0 {
		p.log.Debugw("skipping malformed trojan uri", "uri", uri)
		return nil
	}

	q := u.Query()
	sni := q.Get("sni")
	if sni == "" {
		sni = q.Get("peer")
	}
	return &server.Server{
		Protocol: server.ProtocolTrojan,
		Remark:   u.Fragment,
		Address:  u.Hostname(),
		Port:     port,
		Password: u.User.Username(),
		SNI:      sni,
		Security: queryOr(q, "security", "tls"),
		Type:     queryOr(q, "type", "tcp"),
		Flow:     q.Get("flow"),
		Path:     q.Get("path"),
		Host:     q.Get("host"),
		RawURI:   uri,
	}
}

// parseVMess decodes the Base64 JSON payload form. Aggregator feeds produce
// payloads with broken padding, trailing query strings, and garbage after the
// closing brace; all of these are tolerated.
func (p *Parser) parseVMess(uri string) *server.Server {
	encoded := strings.TrimPrefix(uri, "vmess://")
	if idx := strings.IndexByte(encoded, '?'); idx >= 0 {
		encoded = encoded[:idx]
	}
	decoded, err := decodeBase64Loose(encoded)
	if err != nil {
		return nil
	}

	payload := string(decoded)
	if idx := strings.LastIndexByte(payload, '}'); idx >= 0 {
		payload = payload[:idx+1]
	}

	fields := map[string]any{}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil
	}

	port := intField(fields, "port")
	address := stringField(fields, "add")
	if address == "" || port == 0 {
		return nil
	}

	return &server.Server{
		Protocol: server.ProtocolVMess,
		Remark:   stringField(fields, "ps"),
		Address:  address,
		Port:     port,
		VMessID:  stringField(fields, "id"),
		Security: stringOr(fields, "scy", "auto"),
		Type:     stringOr(fields, "net", "tcp"),
		Host:     stringField(fields, "host"),
		Path:     stringField(fields, "path"),
		TLS:      stringOr(fields, "tls", "none"),
		SNI:      stringField(fields, "sni"),
		AlterID:  intField(fields, "aid"),
		RawURI:   uri,
	}
}

func (p *Parser) parseShadowsocks(uri string) *server.Server {
	rest := strings.TrimPrefix(uri, "ss://")

	remark := ""
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		if unescaped, err := url.PathUnescape(rest[idx+1:]); err == nil {
			remark = unescaped
		} else {
			remark = rest[idx+1:]
		}
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSuffix(rest, "/")

	// Standard form: base64(method:password)@host:port. The legacy
	// whole-URI Base64 form is not supported.
	userInfo, hostPort, found := strings.Cut(rest, "@")
	if !found {
		return nil
	}
	decoded, err := decodeBase64Loose(userInfo)
	if err != nil {
		return nil
	}
	method, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil
	}

	hostIdx := strings.LastIndexByte(hostPort, ':')
	if hostIdx < 0 {
		return nil
	}
	port := parsePort(hostPort[hostIdx+1:])
	host := hostPort[:hostIdx]
	if host == "" || port == 0 {
		return nil
	}

	return &server.Server{
		Protocol: server.ProtocolShadowsocks,
		Remark:   remark,
		Address:  host,
		Port:     port,
		Method:   method,
		Password: password,
		RawURI:   uri,
	}
}

func (p *Parser) parseHysteria2(uri string) *server.Server {
	u, err := url.Parse(uri)
	if err != nil {
		p.log.Debugw("skipping malformed hysteria2 uri", "error", err)
		return nil
	}
	port := parsePort(u.Port())
	if u.User == nil || u.User.Username() == "" || u.Hostname() == "" || port == 0 {
		p.log.Debugw("skipping malformed hysteria2 uri", "uri", uri)
		return nil
	}

	q := u.Query()
	return &server.Server{
		Protocol:     server.ProtocolHysteria2,
		Remark:       u.Fragment,
		Address:      u.Hostname(),
		Port:         port,
		Password:     u.User.Username(),
		SNI:          q.Get("sni"),
		Insecure:     q.Get("insecure") == "1",
		Obfs:         q.Get("obfs"),
		ObfsPassword: q.Get("obfs-password"),
		RawURI:       uri,
	}
}

func parsePort(s string) int {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0
	}
	return port
}

func queryOr(q url.Values, key, fallback string) string {
	if v := q.Get(key); v != "" {
		return v
	}
	return fallback
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func stringOr(fields map[string]any, key, fallback string) string {
	if v := stringField(fields, key); v != "" {
		return v
	}
	return fallback
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
