// Package task runs background jobs outside request handling.
//
// Jobs are named JSON payloads placed on a Queue. A Runner owns a pool of
// workers that dequeue jobs, dispatch them to the handler registered for the
// job name and acknowledge them once the handler returns. Handlers run under
// a hard deadline and are warned about at a soft limit. Retry policy belongs
// to the handler, which reschedules a job with ScheduleRetry. The Redis queue
// survives restarts and delivers at least once; the in-memory queue is for
// single-process development and tests.
package task
