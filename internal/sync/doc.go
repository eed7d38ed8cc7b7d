// Package sync drives the source adapters on a schedule. Each source
// gets an independent cycle loop with retry, a circuit breaker, and
// mutual exclusion so a slow pull never overlaps itself. Fetched
// records feed straight into the dedup engine.
package sync
