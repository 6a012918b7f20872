// Debounce and throttle for Go functions, with explicit leading/trailing edge control.
//
// Features:
//
// - Debounce a function: run it once a burst of calls has settled, with the last call's argument
//
// - Leading and trailing edge policies, combinable
//
// - MaxWait bound so a continuous stream of calls can never defer the invocation forever
//
// - Throttle as a debounce specialization (MaxWait = Wait): at least one invocation per window
//
// - Cancel, Flush and Pending control operations, plus context-based abort and Close for scope disposal
//
// - Keyed groups of independent controllers with idle eviction
//
// - Runtime statistics, Prometheus metrics and OpenTelemetry spans
//
// - Configuration through functional options (WithLeading, WithMaxWait, ...), validated at construction,
// or through named policies loaded from YAML
//
// - Injectable clock for deterministic testing
//
// - Thread safe
//
package gobounce
