// Package fuse provides the core data model and engine configuration for
// FuseHPM, a hardware-performance-monitoring data fusion tool.
//
// # Reading Guide
//
// Start with these files to understand the core model:
//   - event.go: Event and Symbol identifiers
//   - instance.go: Instance records and the depth-first label comparator
//   - config.go: EngineConfig, the immutable configuration/capability record
//   - errors.go: sentinel errors for the DataNotFound/PreconditionViolated kinds
//
// # Architecture
//
// This package defines the shared vocabulary; the actual subsystems live in
// sub-packages:
//   - fuse/stats: running-statistics accumulator (Welford)
//   - fuse/profile: execution profile store
//   - fuse/combine: the five instance-combination strategies
//   - fuse/analyzer: earth-mover distance and calibration tables
//   - fuse/reference: reference distribution cache
//   - fuse/sequence: branch-and-bound combination-sequence search
//   - fuse/target: the Target aggregate and its JSON descriptor
//   - fuse/orchestrator: top-level operations wiring the above together
//   - fuse/ports: external collaborator interfaces (Profiler, trace parser)
package fuse
