// Package privacy holds the cryptographic primitives of the negotiator:
// Pedersen commitments hiding amounts and prices, stealth addresses,
// nullifiers and ECDH-based message encryption.
//
// All primitives work over secp256k1. Functions are pure apart from drawing
// randomness from crypto/rand and are safe for concurrent use.
package privacy
