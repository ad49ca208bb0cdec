// Package upstream is the resilient HTTP gateway for all third-party data
// sources. It retries connection-level failures with exponential backoff and
// enforces a hard per-attempt timeout; HTTP error statuses pass through for
// callers to interpret.
package upstream
