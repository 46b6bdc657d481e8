// Package consts names the environment variables and other well-known
// configuration keys read by internal/settings.
package consts

const (
	JSON_LOGGING = "JSON_LOGGING"
	LOG_LEVEL    = "LOG_LEVEL"

	HTTP_LISTEN_ADDR    = "HTTP_LISTEN_ADDR"
	HTTP_READ_TIMEOUT   = "HTTP_READ_TIMEOUT_SECONDS"
	HTTP_WRITE_TIMEOUT  = "HTTP_WRITE_TIMEOUT_SECONDS"
	HTTP_SHUTDOWN_GRACE = "HTTP_SHUTDOWN_GRACE_SECONDS"

	ADMIN_OWNER_UUID = "ADMIN_OWNER_UUID"
	UNDERLAY_NIC_TAG = "UNDERLAY_NIC_TAG"
	FABRICS_ENABLED  = "FABRICS_ENABLED"
	ULA_FABRICS      = "ULA_FABRICS_ENABLED"

	// ETAG_RETRY_BOUND accepts an integer, the literal string "Infinity", or
	// JSON null; see settings.parseRetryBound.
	ETAG_RETRY_BOUND  = "ETAG_RETRY_BOUND"
	ALLOC_RETRY_BOUND = "ALLOC_RETRY_BOUND"

	MONGO_URI = "MONGO_URI"
	MONGO_DB  = "MONGO_DB"
)
