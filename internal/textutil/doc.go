// Package textutil provides the text folding and hashing helpers used when
// canonicalising provider vocabulary.
//
// Keywords from the metadata provider carry no durable identifier, so the
// canonical keyword ID is a deterministic 32-bit polynomial hash of the folded
// keyword string. It is not cryptographic; collisions are possible in theory
// and accepted at catalog vocabulary sizes.
package textutil
