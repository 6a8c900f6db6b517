// Package xray drives the external proxy engine: it renders batch configs
// with one SOCKS inbound per candidate and owns the engine process during a
// probe run.
package xray

import (
	"fmt"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

// Config is the engine configuration document for one batch.
type Config struct {
	Log       LogConfig  `json:"log"`
	Inbounds  []Inbound  `json:"inbounds"`
	Outbounds []Outbound `json:"outbounds"`
	Routing   Routing    `json:"routing"`
}

type LogConfig struct {
	Loglevel string `json:"loglevel"`
}

type Inbound struct {
	Tag      string          `json:"tag"`
	Port     int             `json:"port"`
	Listen   string          `json:"listen"`
	Protocol string          `json:"protocol"`
	Settings InboundSettings `json:"settings"`
}

type InboundSettings struct {
	Auth string `json:"auth"`
	UDP  bool   `json:"udp"`
	IP   string `json:"ip"`
}

type Outbound struct {
	Tag            string           `json:"tag"`
	Protocol       string           `json:"protocol"`
	Settings       OutboundSettings `json:"settings"`
	StreamSettings *StreamSettings  `json:"streamSettings,omitempty"`
}

type OutboundSettings struct {
	Vnext   []VnextServer    `json:"vnext,omitempty"`
	Servers []OutboundServer `json:"servers,omitempty"`
}

type VnextServer struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Users   []User `json:"users"`
}

type User struct {
	ID         string `json:"id"`
	Encryption string `json:"encryption,omitempty"`
	Flow       string `json:"flow,omitempty"`
	AlterID    *int   `json:"alterId,omitempty"`
	Security   string `json:"security,omitempty"`
}

type OutboundServer struct {
	Address  string        `json:"address"`
	Port     int           `json:"port"`
	Method   string        `json:"method,omitempty"`
	Password string        `json:"password,omitempty"`
	Obfs     *ObfsSettings `json:"obfs,omitempty"`
}

type ObfsSettings struct {
	Type     string `json:"type"`
	Password string `json:"password"`
}

type StreamSettings struct {
	Network         string           `json:"network,omitempty"`
	Security        string           `json:"security,omitempty"`
	WSSettings      *WSSettings      `json:"wsSettings,omitempty"`
	TLSSettings     *TLSSettings     `json:"tlsSettings,omitempty"`
	RealitySettings *RealitySettings `json:"realitySettings,omitempty"`
}

type WSSettings struct {
	Path string `json:"path"`
	Host string `json:"host,omitempty"`
}

type TLSSettings struct {
	ServerName    string `json:"serverName,omitempty"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	AllowInsecure bool   `json:"allowInsecure,omitempty"`
}

type RealitySettings struct {
	ServerName  string `json:"serverName,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	PublicKey   string `json:"publicKey,omitempty"`
	ShortID     string `json:"shortId,omitempty"`
}

type Routing struct {
	Rules []RoutingRule `json:"rules"`
}

type RoutingRule struct {
	Type        string   `json:"type"`
	InboundTag  []string `json:"inboundTag"`
	OutboundTag string   `json:"outboundTag"`
}

// BuildConfig renders the engine config for a batch: inbound in-i listens on
// 127.0.0.1:basePort+i and is routed exclusively to outbound out-i, which
// materialises the candidate's protocol.
func BuildConfig(servers []*server.Server, basePort int) *Config {
	cfg := &Config{
		Log: LogConfig{Loglevel: "warning"},
	}

	for i, s := range servers {
		inboundTag := inboundTagFor(i)
		outboundTag := outboundTagFor(i)

		cfg.Inbounds = append(cfg.Inbounds, Inbound{
			Tag:      inboundTag,
			Port:     basePort + i,
			Listen:   "127.0.0.1",
			Protocol: "socks",
			Settings: InboundSettings{Auth: "noauth", UDP: true, IP: "127.0.0.1"},
		})

		outbound := buildOutbound(s)
		if outbound == nil {
			continue
		}
		outbound.Tag = outboundTag
		cfg.Outbounds = append(cfg.Outbounds, *outbound)
		cfg.Routing.Rules = append(cfg.Routing.Rules, RoutingRule{
			Type:        "field",
			InboundTag:  []string{inboundTag},
			OutboundTag: outboundTag,
		})
	}

	return cfg
}

func buildOutbound(s *server.Server) *Outbound {
	switch s.Protocol {
	case server.ProtocolVLESS:
		return buildVLESSOutbound(s)
	case server.ProtocolVMess:
		return buildVMessOutbound(s)
	case server.ProtocolTrojan:
		return buildTrojanOutbound(s)
	case server.ProtocolShadowsocks:
		return buildShadowsocksOutbound(s)
	case server.ProtocolHysteria2:
		return buildHysteria2Outbound(s)
	default:
		return nil
	}
}

func buildVLESSOutbound(s *server.Server) *Outbound {
	stream := &StreamSettings{
		Network:  valueOr(s.Type, "tcp"),
		Security: sanitizeSecurity(s.Security),
	}
	applyWS(stream, s)

	serverName := firstNonEmpty(s.SNI, s.Host, s.Address)
	fingerprint := valueOr(s.FP, "chrome")
	switch stream.Security {
	case "tls":
		stream.TLSSettings = &TLSSettings{ServerName: serverName, Fingerprint: fingerprint}
	case "reality":
		stream.RealitySettings = &RealitySettings{
			ServerName:  serverName,
			Fingerprint: fingerprint,
			PublicKey:   s.PublicKey,
			ShortID:     s.ShortID,
		}
	}

	return &Outbound{
		Protocol: "vless",
		Settings: OutboundSettings{Vnext: []VnextServer{{
			Address: s.Address,
			Port:    s.Port,
			Users:   []User{{ID: s.VLESSID, Encryption: "none", Flow: s.Flow}},
		}}},
		StreamSettings: stream,
	}
}

func buildVMessOutbound(s *server.Server) *Outbound {
	stream := &StreamSettings{
		Network:  valueOr(s.Type, "tcp"),
		Security: sanitizeSecurity(s.TLS),
	}
	applyWS(stream, s)
	if stream.Security == "tls" {
		stream.TLSSettings = &TLSSettings{ServerName: firstNonEmpty(s.SNI, s.Host, s.Address)}
	}

	alterID := s.AlterID
	return &Outbound{
		Protocol: "vmess",
		Settings: OutboundSettings{Vnext: []VnextServer{{
			Address: s.Address,
			Port:    s.Port,
			Users: []User{{
				ID:       s.VMessID,
				AlterID:  &alterID,
				Security: valueOr(s.Security, "auto"),
			}},
		}}},
		StreamSettings: stream,
	}
}

func buildTrojanOutbound(s *server.Server) *Outbound {
	stream := &StreamSettings{
		Network:     valueOr(s.Type, "tcp"),
		Security:    "tls",
		TLSSettings: &TLSSettings{ServerName: firstNonEmpty(s.SNI, s.Host, s.Address)},
	}
	applyWS(stream, s)

	return &Outbound{
		Protocol: "trojan",
		Settings: OutboundSettings{Servers: []OutboundServer{{
			Address:  s.Address,
			Port:     s.Port,
			Password: s.Password,
		}}},
		StreamSettings: stream,
	}
}

func buildShadowsocksOutbound(s *server.Server) *Outbound {
	return &Outbound{
		Protocol: "shadowsocks",
		Settings: OutboundSettings{Servers: []OutboundServer{{
			Address:  s.Address,
			Port:     s.Port,
			Method:   s.Method,
			Password: s.Password,
		}}},
	}
}

func buildHysteria2Outbound(s *server.Server) *Outbound {
	out := OutboundServer{
		Address:  s.Address,
		Port:     s.Port,
		Password: s.Password,
	}
	if s.Obfs != "" && s.Obfs != "none" {
		out.Obfs = &ObfsSettings{Type: s.Obfs, Password: s.ObfsPassword}
	}

	return &Outbound{
		Protocol: "hysteria2",
		Settings: OutboundSettings{Servers: []OutboundServer{out}},
		StreamSettings: &StreamSettings{
			Security: "tls",
			TLSSettings: &TLSSettings{
				ServerName:    firstNonEmpty(s.SNI, s.Host, s.Address),
				AllowInsecure: s.Insecure,
			},
		},
	}
}

func applyWS(stream *StreamSettings, s *server.Server) {
	if stream.Network != "ws" {
		return
	}
	stream.WSSettings = &WSSettings{
		Path: valueOr(s.Path, "/"),
		Host: firstNonEmpty(s.Host, s.Address),
	}
}

// sanitizeSecurity rewrites the feed value "auto" to "none": the engine has
// no "auto" stream security.
func sanitizeSecurity(security string) string {
	if security == "" || security == "auto" {
		return "none"
	}
	return security
}

func inboundTagFor(i int) string  { return fmt.Sprintf("in-%d", i) }
func outboundTagFor(i int) string { return fmt.Sprintf("out-%d", i) }

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
