// Package dispatch routes command and query requests to their single registered handler
// through a fixed pipeline of validation, caching, metrics and event publication.
package dispatch

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Request is anything the dispatcher can route.
// OperationName is the stable name used for metrics and logs.
type Request interface {
	OperationName() string
}

// Command is a request that changes state
type Command interface {
	Request
	isCommand()
}

// Query is a request that only reads state
type Query interface {
	Request
	isQuery()
}

// CommandBase marks a request struct as a Command when embedded
type CommandBase struct{}

func (CommandBase) isCommand() {}

// QueryBase marks a request struct as a Query when embedded
type QueryBase struct{}

func (QueryBase) isQuery() {}

// Cacheable queries have their whole Result cached under CacheKey.
// A CacheTTL <= 0 uses the dispatcher default.
type Cacheable interface {
	CacheKey() string
	CacheTTL() time.Duration
}

// Invalidating commands remove matching cache entries after a successful outcome
type Invalidating interface {
	InvalidatePatterns() []string
}

// Attributed requests add coarse metric tags. Never return identifiers or personal data.
type Attributed interface {
	MetricAttributes() []attribute.KeyValue
}

// Request kinds used as metric tags
const (
	KindCommand = "command"
	KindQuery   = "query"
	KindRequest = "request"
)

// KindOf classifies a request
func KindOf(req Request) string {
	switch req.(type) {
	case Command:
		return KindCommand
	case Query:
		return KindQuery
	default:
		return KindRequest
	}
}
