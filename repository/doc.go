// Package repository provides a generic repository abstraction built on Bun:
// declarative query composition, pagination, and a shared change-tracking
// session that stages writes in memory until they are flushed atomically.
package repository
