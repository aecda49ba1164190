// Package metrics defines the Prometheus counters the messaging core updates.
//
// Counters are created unregistered when no Registerer is given, so library
// code can always increment them and only the CLI decides whether they are
// exported.
package metrics
