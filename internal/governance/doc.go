// Package governance coordinates runtime safety controls for pipeline
// execution: per-node retry policy, backoff calculation, and timeout
// sentinels. The executor depends on these primitives to bound node attempts
// without introducing extra infrastructure coupling.
package governance
