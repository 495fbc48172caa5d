package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrAlreadyRunning ErrorCode = "already_running"
	ErrLockFailed     ErrorCode = "lock_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Control channel errors
	ErrAlreadyBound       ErrorCode = "already_bound"
	ErrChannelUnavailable ErrorCode = "channel_unavailable"
	ErrProtocol           ErrorCode = "protocol_error"

	// Hardware errors
	ErrSensorUnavailable ErrorCode = "sensor_unavailable"
	ErrBusUnavailable    ErrorCode = "bus_unavailable"
	ErrBus               ErrorCode = "bus_error"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidArgument:    "Invalid argument provided",
	ErrInvalidConfig:      "Invalid configuration",
	ErrReadConfig:         "Failed to read configuration",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrAlreadyRunning:     "Service already running",
	ErrLockFailed:         "Failed to acquire service lock",
	ErrShutdownFailed:     "Shutdown failed",
	ErrAlreadyBound:       "Control socket already bound",
	ErrChannelUnavailable: "Service is not running",
	ErrProtocol:           "Malformed control message",
	ErrSensorUnavailable:  "Temperature sensor unavailable",
	ErrBusUnavailable:     "I2C bus unavailable",
	ErrBus:                "I2C bus write failed",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
