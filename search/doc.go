// Package search coordinates the database and embedding workers into a
// single text-to-results pipeline, correlating asynchronous responses by
// generated request id and fencing them against image reloads.
package search
