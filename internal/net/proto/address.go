package proto

import (
	"encoding/binary"
	"net"
	"strings"
)

// AddressToUint32 packs a dotted-quad address into a big-endian uint32. A
// " (n)" dedup suffix is ignored; anything that is not IPv4 packs to zero.
func AddressToUint32(address string) uint32 {
	if i := strings.IndexByte(address, ' '); i >= 0 {
		address = address[:i]
	}
	ip := net.ParseIP(address).To4()
	if ip == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip)
}
