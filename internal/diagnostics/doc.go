// Package diagnostics reports the resources of the host and of the running
// process. The health endpoint and the doctor command both read a Snapshot.
//
// Host figures come from gopsutil and are best-effort: a probe that fails
// on the current platform leaves its fields zero instead of failing the
// whole snapshot.
package diagnostics
