// Package signature canonicalizes structured payloads and signs or verifies
// them with node- and user-scoped keys. Canonicalization serializes with map
// keys sorted lexicographically, so semantically identical payloads sign
// identically regardless of field order.
//
// Verification never raises: malformed keys, malformed signatures and
// unreachable key servers all verify to false. Unauthenticated payloads are
// rejected, never tentatively accepted.
package signature
