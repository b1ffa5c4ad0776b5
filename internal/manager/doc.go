// Package manager provides lifecycle, admission, and eviction for model
// instances. It is structured into small files by concern:
//
//   - manager.go: core Manager type, Acquire, registry getters, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, Key, Instance, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, IsBudgetExceeded).
//   - helpers.go: small utilities (model lookup, memory estimation).
//   - ensure.go: load-once per key under a per-key lock.
//   - admission.go: per-instance queueing and generation admission.
//   - lease.go: Lease handed to callers between admission and release.
//   - evict.go: LRU eviction under the memory budget and loaded-models cap.
//   - unload.go: drain, unload and delete.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - ops.go: background warmup (Switch).
//   - events.go, eventpub_memory.go: lifecycle events and a capturing publisher.
//   - sanity.go: startup checks of the runtime and the default model.
//
// Locking is two-tier. Manager.mu guards only map structure and is never held
// across a load or a generation. A per-key lock serializes the load-or-reuse
// decision so concurrent callers for one key share a single load while
// callers for other keys proceed. Generation on an instance is serialized by
// its single in-flight slot because runtimes are not assumed reentrant.
package manager
