package subscription

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/proxypulse/proxypulse/internal/domain/server"
)

// vmessPayload is the JSON carried by a vmess:// link. Field order is part
// of the emitted format, so it is a struct rather than a map.
type vmessPayload struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  int    `json:"aid"`
	Scy  string `json:"scy"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
}

// GenerateURI re-encodes a descriptor into its share-link form. The output
// is lossy: fields the descriptor does not model are dropped. Unknown
// protocols fall back to the stored raw URI.
func GenerateURI(s *server.Server) string {
	switch s.Protocol {
	case server.ProtocolVLESS:
		return generateVLESS(s)
	case server.ProtocolVMess:
		return generateVMess(s)
	case server.ProtocolTrojan:
		return generateTrojan(s)
	case server.ProtocolShadowsocks:
		return generateShadowsocks(s)
	case server.ProtocolHysteria2:
		return generateHysteria2(s)
	default:
		return s.RawURI
	}
}

func generateVLESS(s *server.Server) string {
	params := url.Values{}
	setIfPresent(params, "encryption", s.Encryption)
	setIfPresent(params, "security", s.Security)
	setIfPresent(params, "type", s.Type)
	setIfPresent(params, "host", s.Host)
	setIfPresent(params, "path", s.Path)
	setIfPresent(params, "sni", s.SNI)
	setIfPresent(params, "flow", s.Flow)
	setIfPresent(params, "fp", s.FP)
	setIfPresent(params, "pbk", s.PublicKey)
	setIfPresent(params, "sid", s.ShortID)

	return fmt.Sprintf("vless://%s@%s:%d?%s#%s",
		s.VLESSID, s.Address, s.Port, params.Encode(), url.PathEscape(s.Remark))
}

func generateVMess(s *server.Server) string {
	payload := vmessPayload{
		V:    "2",
		PS:   s.Remark,
		Add:  s.Address,
		Port: strconv.Itoa(s.Port),
		ID:   s.VMessID,
		Aid:  s.AlterID,
		Scy:  valueOr(s.Security, "auto"),
		Net:  valueOr(s.Type, "tcp"),
		Type: "none",
		Host: s.Host,
		Path: s.Path,
		TLS:  s.TLS,
		SNI:  s.SNI,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return s.RawURI
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(data)
}

func generateTrojan(s *server.Server) string {
	params := url.Values{}
	setIfPresent(params, "security", s.Security)
	setIfPresent(params, "sni", s.SNI)
	setIfPresent(params, "type", s.Type)
	setIfPresent(params, "flow", s.Flow)
	setIfPresent(params, "path", s.Path)
	setIfPresent(params, "host", s.Host)

	return fmt.Sprintf("trojan://%s@%s:%d?%s#%s",
		s.Password, s.Address, s.Port, params.Encode(), url.PathEscape(s.Remark))
}

func generateShadowsocks(s *server.Server) string {
	userInfo := base64.RawURLEncoding.EncodeToString([]byte(s.Method + ":" + s.Password))
	return fmt.Sprintf("ss://%s@%s:%d#%s",
		userInfo, s.Address, s.Port, url.PathEscape(s.Remark))
}

func generateHysteria2(s *server.Server) string {
	params := url.Values{}
	setIfPresent(params, "sni", s.SNI)
	setIfPresent(params, "obfs", s.Obfs)
	setIfPresent(params, "obfs-password", s.ObfsPassword)
	if s.Insecure {
		params.Set("insecure", "1")
	}

	return fmt.Sprintf("hy2://%s@%s:%d?%s#%s",
		s.Password, s.Address, s.Port, params.Encode(), url.PathEscape(s.Remark))
}

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
