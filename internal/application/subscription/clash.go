package subscription

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

type clashProxy struct {
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	Server         string            `yaml:"server"`
	Port           int               `yaml:"port"`
	Cipher         string            `yaml:"cipher,omitempty"`
	Password       string            `yaml:"password,omitempty"`
	UUID           string            `yaml:"uuid,omitempty"`
	AlterID        *int              `yaml:"alterId,omitempty"`
	TLS            bool              `yaml:"tls,omitempty"`
	UDP            bool              `yaml:"udp,omitempty"`
	Network        string            `yaml:"network,omitempty"`
	SNI            string            `yaml:"sni,omitempty"`
	ServerName     string            `yaml:"servername,omitempty"`
	Flow           string            `yaml:"flow,omitempty"`
	SkipCertVerify bool              `yaml:"skip-cert-verify,omitempty"`
	Obfs           string            `yaml:"obfs,omitempty"`
	ObfsPassword   string            `yaml:"obfs-password,omitempty"`
	WSOpts         map[string]any    `yaml:"ws-opts,omitempty"`
	RealityOpts    map[string]string `yaml:"reality-opts,omitempty"`
	ClientFP       string            `yaml:"client-fingerprint,omitempty"`
}

type clashDocument struct {
	Proxies []clashProxy `yaml:"proxies"`
}

// FormatClash renders descriptors as a Clash `proxies:` document. Protocols
// Clash cannot express are skipped.
func FormatClash(servers []*server.Server) (string, error) {
	doc := clashDocument{Proxies: make([]clashProxy, 0, len(servers))}

	for i, s := range servers {
		name := s.Remark
		if name == "" {
			name = fmt.Sprintf("%s-%d", s.Protocol, i)
		}

		p := clashProxy{Name: name, Server: s.Address, Port: s.Port, UDP: true}
		switch s.Protocol {
		case server.ProtocolShadowsocks:
			p.Type = "ss"
			p.Cipher = s.Method
			p.Password = s.Password
		case server.ProtocolVMess:
			p.Type = "vmess"
			p.UUID = s.VMessID
			aid := s.AlterID
			p.AlterID = &aid
			p.Cipher = valueOr(s.Security, "auto")
			p.TLS = s.TLS == "tls"
			p.Network = s.Type
			p.ServerName = s.SNI
			applyClashWS(&p, s)
		case server.ProtocolVLESS:
			p.Type = "vless"
			p.UUID = s.VLESSID
			p.Flow = s.Flow
			p.TLS = s.Security == "tls" || s.Security == "reality"
			p.Network = s.Type
			p.ServerName = firstNonEmptyString(s.SNI, s.Host)
			p.ClientFP = valueOr(s.FP, "chrome")
			if s.Security == "reality" {
				p.RealityOpts = map[string]string{
					"public-key": s.PublicKey,
					"short-id":   s.ShortID,
				}
			}
			applyClashWS(&p, s)
		case server.ProtocolTrojan:
			p.Type = "trojan"
			p.Password = s.Password
			p.SNI = firstNonEmptyString(s.SNI, s.Host)
			p.Network = s.Type
			applyClashWS(&p, s)
		case server.ProtocolHysteria2:
			p.Type = "hysteria2"
			p.Password = s.Password
			p.SNI = s.SNI
			p.SkipCertVerify = s.Insecure
			if s.Obfs != "" && s.Obfs != "none" {
				p.Obfs = s.Obfs
				p.ObfsPassword = s.ObfsPassword
			}
		default:
			continue
		}

		doc.Proxies = append(doc.Proxies, p)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal clash config: %w", err)
	}
	return string(out), nil
}

func applyClashWS(p *clashProxy, s *server.Server) {
	if s.Type != "ws" {
		return
	}
	opts := map[string]any{"path": valueOr(s.Path, "/")}
	if host := firstNonEmptyString(s.Host, s.Address); host != "" {
		opts["headers"] = map[string]string{"Host": host}
	}
	p.WSOpts = opts
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
