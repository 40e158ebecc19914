package dsmstate

import "fmt"

// DeviceInfo identifies the device a State was produced on (spec.md §3,
// §4.B: device_id paired with the device's derived key).
type DeviceInfo struct {
	DeviceID  string
	DeviceKey []byte
}

// Encode produces DeviceInfo's canonical form: two length-prefixed fields,
// device_id then device_key, in that fixed order.
func (d DeviceInfo) Encode() []byte {
	buf := make([]byte, 0, len(d.DeviceID)+len(d.DeviceKey)+8)
	buf = encodeBytes(buf, []byte(d.DeviceID))
	buf = encodeBytes(buf, d.DeviceKey)
	return buf
}

// DecodeDeviceInfo parses the form written by DeviceInfo.Encode.
func DecodeDeviceInfo(buf []byte) (DeviceInfo, int, error) {
	id, n, err := decodeBytes(buf)
	if err != nil {
		return DeviceInfo{}, 0, fmt.Errorf("dsmstate: device_id: %w", err)
	}
	pos := n
	key, n, err := decodeBytes(buf[pos:])
	if err != nil {
		return DeviceInfo{}, 0, fmt.Errorf("dsmstate: device_key: %w", err)
	}
	pos += n
	return DeviceInfo{DeviceID: string(id), DeviceKey: key}, pos, nil
}

// Equal reports whether two DeviceInfo values are identical.
func (d DeviceInfo) Equal(other DeviceInfo) bool {
	if d.DeviceID != other.DeviceID {
		return false
	}
	if len(d.DeviceKey) != len(other.DeviceKey) {
		return false
	}
	for i := range d.DeviceKey {
		if d.DeviceKey[i] != other.DeviceKey[i] {
			return false
		}
	}
	return true
}
