// Package database provides connection management, configuration, table
// bootstrap, data seeding, logging, health checks, and error classification
// for the store collaborator built on top of Bun.
package database
