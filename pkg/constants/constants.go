// Package constants defines system-wide constants for the API shield.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Default Limit Constants
// ================================================================================

const (
	// DefaultLimitMax is the default number of requests allowed inside one window
	DefaultLimitMax = 12

	// DefaultLimitWindow is the default counting window
	DefaultLimitWindow = 108 * time.Second

	// DefaultLimitBan is the default ban duration applied when the limit trips
	DefaultLimitBan = 3600 * time.Second

	// DefaultIdentityTTL is the default age after which idle counter records are swept (7 days)
	DefaultIdentityTTL = 7 * 24 * time.Hour

	// DefaultBanDelay is the default tarpit delay applied to requests rejected by an active ban
	DefaultBanDelay = 1 * time.Second
)

// ================================================================================
// Storage Key Constants
// ================================================================================

const (
	// BanKeyPrefix namespaces ban records: ban:{identity}
	BanKeyPrefix = "ban:"

	// CounterKeyPrefix namespaces counter records: ip:{identity} or ip:{scope}:{identity}
	CounterKeyPrefix = "ip:"

	// KeySeparator separates the scope key from the identity inside a counter key
	KeySeparator = ":"
)

// ================================================================================
// Request Layer Constants
// ================================================================================

const (
	// DefaultPathPrefix is the request path prefix guarded by the shield middleware
	DefaultPathPrefix = "/api/"

	// DefaultErrorMessage is the message returned with a 429 response
	DefaultErrorMessage = "Too Many Requests"

	// UnknownIdentity is used when the client address cannot be determined
	UnknownIdentity = "unknown"

	// HeaderRetryAfter is the standard retry hint header
	HeaderRetryAfter = "Retry-After"

	// HeaderRequestID carries the request correlation id
	HeaderRequestID = "X-Request-ID"
)

// ================================================================================
// Storage Driver Constants
// ================================================================================

// StorageDriver names a storage backend implementation
type StorageDriver string

const (
	// StorageDriverMemory keeps records in process memory
	StorageDriverMemory StorageDriver = "memory"

	// StorageDriverRedis keeps records in Redis
	StorageDriverRedis StorageDriver = "redis"

	// StorageDriverPostgres keeps records in a PostgreSQL table
	StorageDriverPostgres StorageDriver = "postgres"

	// StorageDriverSQLite keeps records in a SQLite table
	StorageDriverSQLite StorageDriver = "sqlite"
)

// ================================================================================
// Admission Outcome Constants
// ================================================================================

// AdmissionReason explains an admission decision
type AdmissionReason string

const (
	// ReasonAllowed means the request was admitted and recorded
	ReasonAllowed AdmissionReason = "allowed"

	// ReasonBanned means the identity is under an active ban
	ReasonBanned AdmissionReason = "banned"

	// ReasonTripped means this request exceeded the quota and started a ban
	ReasonTripped AdmissionReason = "tripped"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for context value keys
type ContextKey string

const (
	// ContextKeyRequestID holds the request correlation id
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyIdentity holds the caller identity resolved by the middleware
	ContextKeyIdentity ContextKey = "identity"
)

// ServiceName is used for tracer and metric namespaces
const ServiceName = "apishield"
