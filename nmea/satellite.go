package nmea

import "fmt"

// Constellation of a satellite, derived from its NMEA id.
type Constellation uint8

const (
	ConstellationUnknown Constellation = 0
	ConstellationGPS     Constellation = 1  // NMEA IDs 1-32
	ConstellationGLONASS Constellation = 2  // NMEA IDs 65-96
	ConstellationGalileo Constellation = 3  // NMEA IDs 301-336
	ConstellationBeidou  Constellation = 4  // NMEA IDs 401-437
	ConstellationQZSS    Constellation = 5  // NMEA IDs 193-202
	ConstellationSBAS    Constellation = 10 // NMEA IDs 33-64, 152-158
)

func (c Constellation) String() string {
	switch c {
	case ConstellationGPS:
		return "GPS"
	case ConstellationGLONASS:
		return "GLONASS"
	case ConstellationGalileo:
		return "Galileo"
	case ConstellationBeidou:
		return "Beidou"
	case ConstellationQZSS:
		return "QZSS"
	case ConstellationSBAS:
		return "SBAS"
	}
	return "Unknown"
}

// SatelliteName maps an NMEA satellite id to its constellation and the
// short name used on status pages (G12, R3, E24, ...).
func SatelliteName(prn int) (Constellation, string) {
	switch {
	case prn <= 0:
		return ConstellationUnknown, fmt.Sprintf("U%d", prn)
	case prn <= 32:
		return ConstellationGPS, fmt.Sprintf("G%d", prn)
	case prn <= 64:
		return ConstellationSBAS, fmt.Sprintf("S%d", prn+87) // 33 = SBAS PRN 120
	case prn <= 96:
		return ConstellationGLONASS, fmt.Sprintf("R%d", prn-64)
	case prn <= 158:
		return ConstellationSBAS, fmt.Sprintf("S%d", prn-151)
	case prn <= 202:
		return ConstellationQZSS, fmt.Sprintf("Q%d", prn-192)
	case prn <= 336:
		return ConstellationGalileo, fmt.Sprintf("E%d", prn-300)
	case prn <= 437:
		return ConstellationBeidou, fmt.Sprintf("B%d", prn-400)
	}
	return ConstellationUnknown, fmt.Sprintf("U%d", prn)
}

// TalkerConstellation returns the constellation implied by a GSV talker.
// Receivers that number satellites per system (GA, GB) report small ids.
func TalkerConstellation(t TalkerID) Constellation {
	switch t {
	case TalkerGPS:
		return ConstellationGPS
	case TalkerGLONASS:
		return ConstellationGLONASS
	case TalkerGalileo:
		return ConstellationGalileo
	case TalkerBeidou, "BD":
		return ConstellationBeidou
	case "GQ", "QZ":
		return ConstellationQZSS
	}
	return ConstellationUnknown
}
