// Package retry provides bounded retry with exponential backoff for
// remote operations. Errors wrapped with Fatal are never retried.
package retry
