package model

// Embedding is a fixed-dimension vector produced by an embedding provider.
// Vectors are unit-norm (L2 = 1) so that cosine similarity reduces to a dot
// product; they are treated as immutable once produced.
type Embedding []float32

// Dim is the embedding dimensionality used throughout the module. It must
// match the vector-store collection schema configured via Knowledge.
//
// 768 mirrors a text-embedding-004-class model. Dim is a compile-time
// constant; no configuration field overrides it. An existing collection
// with another size is reported by vectorstore.Store.EnsureCollection's
// SchemaMismatch path.
const Dim = 768
