// Package fetch retrieves the immutable artifacts the search engine
// consumes: database images, embeddings images, tokenizer vocabularies, and
// encoder model files. Artifacts are addressed by URL (http, https, s3,
// file, or bare path) and may be stored compressed; the resolver inflates
// them transparently.
package fetch
