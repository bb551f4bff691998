// Package store defines the document store the indexer writes to.
// Implementations live in subpackages; this package must not import database
// drivers or concrete clients.
package store
