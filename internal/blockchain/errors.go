package blockchain

import "fmt"

// GatewayError wraps a failure of the token transfer gateway (network error,
// contract revert, insufficient balance). It is only safe to retry the
// underlying operation after confirming no transfer was actually executed.
type GatewayError struct {
	Reason string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("gateway: %s", e.Reason)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
