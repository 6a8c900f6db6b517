package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

func TestFormatClash(t *testing.T) {
	servers := []*server.Server{
		{
			Protocol: server.ProtocolShadowsocks, Remark: "ss-node",
			Address: "1.1.1.1", Port: 8388,
			Method: "chacha20-ietf-poly1305", Password: "pw",
		},
		{
			Protocol: server.ProtocolVLESS, Remark: "vl-node",
			Address: "2.2.2.2", Port: 443, VLESSID: "uuid",
			Security: "reality", Type: "tcp", SNI: "example.com",
			PublicKey: "PK", ShortID: "SID",
		},
		{
			Protocol: server.ProtocolHysteria2, Remark: "hy-node",
			Address: "3.3.3.3", Port: 46914, Password: "pw",
			Insecure: true, Obfs: "salamander", ObfsPassword: "op",
		},
		{Protocol: "wireguard", Address: "4.4.4.4", Port: 51820},
	}

	out, err := FormatClash(servers)
	require.NoError(t, err)

	var doc struct {
		Proxies []map[string]any `yaml:"proxies"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Proxies, 3, "unsupported protocols are skipped")

	ss := doc.Proxies[0]
	assert.Equal(t, "ss", ss["type"])
	assert.Equal(t, "chacha20-ietf-poly1305", ss["cipher"])

	vl := doc.Proxies[1]
	assert.Equal(t, "vless", vl["type"])
	assert.Equal(t, true, vl["tls"])
	reality, ok := vl["reality-opts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PK", reality["public-key"])
	assert.Equal(t, "SID", reality["short-id"])

	hy := doc.Proxies[2]
	assert.Equal(t, "hysteria2", hy["type"])
	assert.Equal(t, true, hy["skip-cert-verify"])
	assert.Equal(t, "salamander", hy["obfs"])
}

func TestFormatClashNamesUnnamedProxies(t *testing.T) {
	servers := []*server.Server{
		{Protocol: server.ProtocolTrojan, Address: "a", Port: 443, Password: "pw"},
	}

	out, err := FormatClash(servers)
	require.NoError(t, err)
	assert.Contains(t, out, "name: trojan-0")
}

func TestFormatClashEmpty(t *testing.T) {
	out, err := FormatClash(nil)
	require.NoError(t, err)
	assert.Contains(t, out, "proxies: []")
}
