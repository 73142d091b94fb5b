// Package crypto contains some cryptographic routines, to:
// - hash arbitrary data (`Digest`) using sha3 (shake128)
// - bind an epoch and a root digest into a signable message
// - generate a random slice of bytes.
//
// Signatures live in crypto/sign, the label VRF in crypto/vrf,
// tree hash functions in crypto/hasher and certificate aggregation
// in crypto/multisig.
package crypto
