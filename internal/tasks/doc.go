// Package tasks runs video generation jobs against the provider.
//
// A Manager accepts Requests, validates them before any network call, and
// drives each task through queued, pending, processing and one of the
// terminal states (completed, failed, cancelled). Create, poll and save
// calls go through bounded dispatchers so a large batch cannot flood the
// provider or the library backend.
//
// Each task polls on its own goroutine with a jittered interval. Consecutive
// poll errors are counted and the task fails once MaxPollErrors is reached;
// any successful poll resets the count. Cancel stops polling immediately and
// aborts an in-flight request.
//
// Completed tasks with a video URL are saved to the library automatically
// when a Library is configured. Saves are idempotent: a task that is saving
// or saved only produces a notice. Finished tasks are recorded through the
// Recorder and removed from memory after CleanupAfter.
//
// Callers observe progress through Snapshot plus Subscribe, or block on Wait.
package tasks
