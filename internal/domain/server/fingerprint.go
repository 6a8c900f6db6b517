package server

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns the protocol-aware identity hash of a descriptor. Two
// descriptors with equal fingerprints designate the same remote endpoint with
// the same crypto and transport parameters, regardless of remark or raw URI.
func Fingerprint(s *Server) uint64 {
	switch s.Protocol {
	case ProtocolVLESS:
		return hashTuple(s.Protocol, s.Address, strconv.Itoa(s.Port), s.VLESSID, s.Flow, s.Type, s.Security, s.Path)
	case ProtocolVMess:
		return hashTuple(s.Protocol, s.Address, strconv.Itoa(s.Port), s.VMessID, s.Type, s.Security, s.Path, s.TLS, strconv.Itoa(s.AlterID))
	case ProtocolTrojan:
		return hashTuple(s.Protocol, s.Address, strconv.Itoa(s.Port), s.Password)
	case ProtocolShadowsocks:
		return hashTuple(s.Protocol, s.Address, strconv.Itoa(s.Port), s.Method, s.Password)
	case ProtocolHysteria2:
		return hashTuple(s.Protocol, s.Address, strconv.Itoa(s.Port), s.Password, s.Obfs)
	default:
		return hashTuple(s.RawURI)
	}
}

// Dedupe removes descriptors whose fingerprint was already seen, keeping the
// first occurrence in input order.
func Dedupe(servers []*Server) []*Server {
	seen := make(map[uint64]struct{}, len(servers))
	out := make([]*Server, 0, len(servers))
	for _, s := range servers {
		fp := Fingerprint(s)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, s)
	}
	return out
}

func hashTuple(parts ...string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		// Separator keeps ("ab","c") distinct from ("a","bc").
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0x1f})
	}
	return d.Sum64()
}
