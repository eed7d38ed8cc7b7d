// Package textmatch provides the pure text-similarity primitives the
// dedup engine scores hearing titles with: normalization, token
// fingerprints with cosine similarity, and normalized edit distance.
package textmatch
