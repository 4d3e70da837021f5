// Package engine loads serialized SQLite database images and answers
// structured and vector nearest-neighbor queries against them.
//
// The primary image holds the entity catalog; an optional embeddings image
// carrying one vector per entity can be attached and detached at runtime
// under a fixed alias. Vector search runs entirely inside a single SQL
// statement using a registered distance function, so result limits and
// filter predicates compose correctly.
//
// Engine methods are not safe for concurrent use; package worker provides
// the FIFO queue that serializes access.
package engine
