// Package embed runs the on-device text encoder: a WordPiece-style
// tokenizer plus a quantized embedding model that together turn a
// natural-language query into a fixed-length L2-normalized vector.
//
// Everything in the pipeline is deterministic: the same (variant, text)
// pair always produces the same vector.
package embed
