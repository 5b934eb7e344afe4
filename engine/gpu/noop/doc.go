// Package noop provides a no-operation GPU backend.
//
// The noop backend implements every engine/gpu interface but performs no actual GPU work.
// Commands are retained in memory in submission order so they can be inspected, which makes the
// backend useful for:
//   - Testing the frame scheduler without GPU hardware
//   - CI environments without GPU access
//   - Headless examples and benchmarks
//
// Submissions complete instantly: Queue.Signal signals its fence immediately, so fence-gated
// cleanup (allocator and scratch reclamation) runs on the very next frame.
package noop
