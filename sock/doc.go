// Package sock holds the raw-descriptor socket helpers used with a reactor
// loop: listeners, accept and connect, non-blocking reads and writes, and
// socket options. Descriptors are plain ints owned by the caller.
package sock
