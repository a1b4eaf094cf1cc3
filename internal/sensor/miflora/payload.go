package miflora

import "encoding/binary"

// realtimeReading is the decoded 16-byte realtime characteristic payload of
// spec §4.10.
type realtimeReading struct {
	temperatureC float64
	brightness   uint32
	moisturePct  uint8
	conductivity uint16
}

func decodeRealtime(data []byte) (realtimeReading, bool) {
	if len(data) < 10 {
		return realtimeReading{}, false
	}
	temp := int16(binary.LittleEndian.Uint16(data[0:2]))
	brightness := uint32(data[3]) | uint32(data[4])<<8 | uint32(data[5])<<16 | uint32(data[6])<<24
	return realtimeReading{
		temperatureC: float64(temp) * 0.1,
		brightness:   brightness,
		moisturePct:  data[7],
		conductivity: binary.LittleEndian.Uint16(data[8:10]),
	}, true
}

// historicalEntry is one decoded 16-byte history-log record.
type historicalEntry struct {
	offsetSeconds uint32
	temperatureC  float64
	brightness    uint32
	moisturePct   uint8
	conductivity  uint16
}

func decodeHistorical(data []byte) (historicalEntry, bool) {
	if len(data) < 14 {
		return historicalEntry{}, false
	}
	offset := binary.LittleEndian.Uint32(data[0:4])
	temp := binary.LittleEndian.Uint16(data[4:6])
	brightness := uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16
	return historicalEntry{
		offsetSeconds: offset,
		temperatureC:  float64(temp) / 10.0,
		brightness:    brightness,
		moisturePct:   data[11],
		conductivity:  binary.LittleEndian.Uint16(data[12:14]),
	}, true
}

var (
	modeRealtimeEnable  = []byte{0xA0, 0x1F}
	modeRealtimeDisable = []byte{0xC0, 0x1F}
	historyReadInit     = []byte{0xA0, 0x00, 0x00}
	historyReadSuccess  = []byte{0xA2, 0x00, 0x00}
)

func historyEntryAddress(idx uint16) []byte {
	return []byte{0xA1, byte(idx), byte(idx >> 8)}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
