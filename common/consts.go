package common

import "time"

// Endpoint names used by the rule presets and the configuration.
const (
	EndpointShip         = "Ship"
	EndpointHandheld     = "Handheld"
	EndpointPlotter      = "Plotter"
	EndpointAis          = "Ais"
	EndpointAuxiliaryGps = "AuxiliaryGps"
	EndpointLocal        = "Local" // sentences injected by the process itself
)

const (
	NMEA_TCP_PORT      = 10110 // IANA registered NMEA-0183 over TCP/UDP
	NMEA_DEFAULT_BAUD  = 4800
	AIS_DEFAULT_BAUD   = 38400
	SEND_QUEUE_SIZE    = 64  // per sink
	DISPATCH_QUEUE_LEN = 1024 // router inbox

	UDP_READ_ERRORS_PER_SECOND = 10
)

// When a source is considered offline / its data stale
const (
	LIVENESS_WINDOW     = 5 * time.Second
	POSITION_MAX_AGE    = 5 * time.Second
	GSV_SEQUENCE_MAX    = 2 * time.Second
	SATELLITES_MAX_AGE  = 10 * time.Second
	AUX_GPS_STALE_AFTER = 10 * time.Second
	REOPEN_INTERVAL     = 2 * time.Second
	SERIAL_READ_TIMEOUT = 2500 * time.Millisecond
	MEASUREMENT_MAX_AGE = 30 * time.Second
	AIS_TARGET_MAX_AGE  = 10 * time.Minute
)
