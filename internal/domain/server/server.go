// Package server defines the canonical descriptor for one proxy endpoint
// and its protocol-aware identity.
package server

// Protocol names as they appear in descriptor records and engine configs.
const (
	ProtocolVLESS       = "vless"
	ProtocolVMess       = "vmess"
	ProtocolTrojan      = "trojan"
	ProtocolShadowsocks = "shadowsocks"
	ProtocolHysteria2   = "hysteria2"
)

// Defaults applied when GeoIP lookup cannot attribute a country.
const (
	DefaultCountryCode = "UN"
	DefaultFlag        = "\U0001F1FA\U0001F1F3"
)

// Server is the canonical in-memory form of one proxy candidate. Protocol
// specific fields are zero-valued when they do not apply; an empty string
// means unset.
type Server struct {
	Protocol string `json:"protocol"`
	Remark   string `json:"remark"`
	Address  string `json:"address"`
	Port     int    `json:"port"`

	VLESSID      string `json:"vless_id,omitempty"`
	VMessID      string `json:"vmess_id,omitempty"`
	Password     string `json:"password,omitempty"`
	Method       string `json:"method,omitempty"`
	Flow         string `json:"flow,omitempty"`
	Encryption   string `json:"encryption,omitempty"`
	Security     string `json:"security,omitempty"`
	Type         string `json:"type,omitempty"`
	Host         string `json:"host,omitempty"`
	Path         string `json:"path,omitempty"`
	SNI          string `json:"sni,omitempty"`
	FP           string `json:"fp,omitempty"`
	PublicKey    string `json:"pbk,omitempty"`
	ShortID      string `json:"sid,omitempty"`
	TLS          string `json:"tls,omitempty"`
	AlterID      int    `json:"aid,omitempty"`
	Obfs         string `json:"obfs,omitempty"`
	ObfsPassword string `json:"obfs_password,omitempty"`
	Insecure     bool   `json:"insecure,omitempty"`

	RawURI string `json:"raw_uri"`

	// Filled by the evaluator after a successful probe round.
	Delay       int    `json:"delay"`
	CountryCode string `json:"country_code"`
	Flag        string `json:"flag"`
}

// Clone returns an independent copy of the descriptor.
func (s *Server) Clone() *Server {
	c := *s
	return &c
}
