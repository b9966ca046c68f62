package crypto

import "crypto/ed25519"

// Ed25519Verify checks a 64-byte Ed25519 signature over message against a
// 32-byte public key. Malformed key or signature lengths verify as false.
func Ed25519Verify(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
