// Package metrics registers process-level Prometheus collectors shared by the
// API and the worker: database pool statistics and build information.
//
// Request and delivery metrics are declared next to the code that records them.
package metrics
