package subscription

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

// Regenerated URIs must parse back to the same endpoint identity.
func TestGenerateURIRoundtrip(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name string
		in   *server.Server
	}{
		{
			name: "vless reality",
			in: &server.Server{
				Protocol: server.ProtocolVLESS, Remark: "🇩🇪 DE 42ms",
				Address: "example.com", Port: 443, VLESSID: "uuid-1",
				Encryption: "none", Security: "reality", Type: "tcp",
				SNI: "example.com", Flow: "xtls-rprx-vision", FP: "chrome",
				PublicKey: "PK", ShortID: "SID",
			},
		},
		{
			name: "vless ws",
			in: &server.Server{
				Protocol: server.ProtocolVLESS, Remark: "ws",
				Address: "1.2.3.4", Port: 8080, VLESSID: "uuid-2",
				Encryption: "none", Security: "tls", Type: "ws",
				Host: "cdn.example.com", Path: "/vl",
			},
		},
		{
			name: "vmess",
			in: &server.Server{
				Protocol: server.ProtocolVMess, Remark: "vm",
				Address: "5.6.7.8", Port: 443, VMessID: "uuid-3",
				Security: "auto", Type: "ws", Host: "h", Path: "/vm",
				TLS: "tls", SNI: "h", AlterID: 0,
			},
		},
		{
			name: "trojan",
			in: &server.Server{
				Protocol: server.ProtocolTrojan, Remark: "tj",
				Address: "proxy.example.com", Port: 443, Password: "secret",
				Security: "tls", Type: "tcp", SNI: "example.org",
			},
		},
		{
			name: "shadowsocks",
			in: &server.Server{
				Protocol: server.ProtocolShadowsocks, Remark: "ss",
				Address: "9.9.9.9", Port: 8388,
				Method: "chacha20-ietf-poly1305", Password: "p&ss:word",
			},
		},
		{
			name: "hysteria2",
			in: &server.Server{
				Protocol: server.ProtocolHysteria2, Remark: "hy",
				Address: "h.example.com", Port: 46914, Password: "pw",
				SNI: "www.google.com", Insecure: true,
				Obfs: "salamander", ObfsPassword: "&O#28YB5qK!5t#U",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri := GenerateURI(tt.in)
			parsed := p.Parse(uri)
			require.NotNil(t, parsed, "generated uri must parse: %s", uri)

			assert.Equal(t, server.Fingerprint(tt.in), server.Fingerprint(parsed))
			assert.Equal(t, tt.in.Remark, parsed.Remark)
			assert.Equal(t, tt.in.Address, parsed.Address)
			assert.Equal(t, tt.in.Port, parsed.Port)
		})
	}
}

func TestGenerateURIUnknownProtocolFallsBack(t *testing.T) {
	s := &server.Server{Protocol: "wireguard", RawURI: "wg://opaque"}
	assert.Equal(t, "wg://opaque", GenerateURI(s))
}

func TestGenerateVMessPayload(t *testing.T) {
	s := &server.Server{
		Protocol: server.ProtocolVMess, Remark: "Node",
		Address: "1.2.3.4", Port: 443, VMessID: "uuid",
		Type: "ws", Host: "h", Path: "/p", TLS: "tls", SNI: "h",
	}

	uri := GenerateURI(s)
	require.True(t, strings.HasPrefix(uri, "vmess://"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "vmess://"))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(decoded, &payload))
	assert.Equal(t, "2", payload["v"])
	assert.Equal(t, "443", payload["port"], "port is emitted as a string")
	assert.Equal(t, "none", payload["type"], "header type is fixed, transport lives in net")
	assert.Equal(t, "ws", payload["net"])
	assert.Equal(t, "auto", payload["scy"], "empty security falls back to auto")
}
