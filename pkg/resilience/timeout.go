package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the purchase timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	HTTP Handler (60s)
//	  ↓
//	Purchase command (50s)
//	  ↓
//	Transaction service call (30s), collaborator reads (5s)
//	  ↓
//	Database query (2s)
//
// Each layer completes before its parent times out.
type TimeoutConfig struct {
	// Handler layer
	HTTPHandler time.Duration

	// Service layer
	PurchaseCommand time.Duration

	// Adapters
	TransactionCall  time.Duration // one attempt at the transaction service, never retried
	CollaboratorRead time.Duration // cascade, mapping, bin routing, fraud and blacklist reads
	PostbackDelivery time.Duration // one postback POST
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:      60 * time.Second,
		PurchaseCommand:  50 * time.Second,
		TransactionCall:  30 * time.Second,
		CollaboratorRead: 5 * time.Second,
		PostbackDelivery: 10 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:      5 * time.Second,
		PurchaseCommand:  4 * time.Second,
		TransactionCall:  2 * time.Second,
		CollaboratorRead: 500 * time.Millisecond,
		PostbackDelivery: 1 * time.Second,
	}
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// PurchaseContext creates a context for one purchase command
func (tc *TimeoutConfig) PurchaseContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.PurchaseCommand)
}

// TransactionContext creates a context for a single transaction service call
func (tc *TimeoutConfig) TransactionContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.TransactionCall)
}

// ReadContext creates a context for one collaborator read attempt
func (tc *TimeoutConfig) ReadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CollaboratorRead)
}

// PostbackContext creates a context for one postback delivery attempt
func (tc *TimeoutConfig) PostbackContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.PostbackDelivery)
}
