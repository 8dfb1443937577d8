// Package keymutex provides a mutual-exclusion registry keyed by string.
//
// Dueue serializes all state transitions for a queue by running them inside
// WithLock(queueName, fn). sync.Mutex's starvation mode keeps waiters from
// being passed over indefinitely, which is the fairness level the delivery
// engine requires.
package keymutex
