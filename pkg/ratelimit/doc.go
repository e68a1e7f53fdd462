// Package ratelimit implements the engine's per-user delivery quota: a
// counter per (user, channel, category) over a fixed UTC calendar-day window.
//
// The limiter separates checking from reserving. Check reads the current
// window without consuming quota; Reserve increments it. The engine checks
// before persisting a notification and reserves once an actual delivery
// attempt is made, so attempts count against the quota regardless of their
// outcome.
//
// Two stores are provided. MemoryStore is exact under its lock and suitable
// for a single process. RedisStore uses an atomic INCR+EXPIREAT pipeline,
// giving exact limiting across processes; its windows expire on their own,
// while the memory store relies on the Reaper to purge finished windows.
package ratelimit
