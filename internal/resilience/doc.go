// Package resilience groups the fault-tolerance policies of the delivery engine.
//
//   - circuitbreaker: breakers around the email provider, the push gateway and the database
//   - retry: the pending-delivery backoff schedule and short synchronous retries
//
// A channel whose breaker is open fails fast with a retryable error, so the
// delivery lands in the pending queue and the retry sweep picks it up later:
//
//	next := now.Add(retry.NextDelay(retry.PendingDeliveryConfig(), attempts))
package resilience
