package mqtt

import "bytes"

const packetConnect = 0x10

// IsConnect reports whether prefix starts with an MQTT CONNECT packet
// whose protocol name is MQTT (3.1.1, 5) or MQIsdp (3.1). It returns false
// until the protocol name has arrived.
func IsConnect(prefix []byte) bool {
	if len(prefix) < 2 || prefix[0] != packetConnect {
		return false
	}

	// Remaining length: up to four bytes, seven bits each.
	i := 1
	for ; i < len(prefix) && i <= 4; i++ {
		if prefix[i]&0x80 == 0 {
			break
		}
	}
	if i >= len(prefix) || i > 4 {
		return false
	}
	i++

	if len(prefix) < i+2 {
		return false
	}
	n := int(prefix[i])<<8 | int(prefix[i+1])
	i += 2
	if len(prefix) < i+n {
		return false
	}
	name := prefix[i : i+n]
	return bytes.Equal(name, []byte("MQTT")) || bytes.Equal(name, []byte("MQIsdp"))
}
