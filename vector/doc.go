// Package vector provides the embedding BLOB codec and distance primitives
// shared by the database engine and the inference worker.
//
// Embeddings travel between components as flat []float32 slices and are
// stored inside the embeddings image as little-endian float32 BLOBs.
package vector
