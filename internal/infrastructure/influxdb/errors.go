package influxdb

import "errors"

// Errors returned by Connect and HealthCheck.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: cannot reach server")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
