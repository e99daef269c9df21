package vboot

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"math/big"
)

// verifySignature checks sig against signed using keyData as an RSA
// public-key modulus with the conventional vboot public exponent
// (F4/65537), hashing signed with SHA-256 and verifying with PKCS#1 v1.5.
//
// This is a best-effort stand-in for vb2_verify_keyblock/vb2_rsa_verify:
// vboot's packed public key is its own wire format (modulus plus a
// Montgomery reduction constant, not an ASN.1 RSA key), and no library in
// the example pack parses it. Treating the key bytes directly as a
// big-endian RSA modulus preserves the real invariant this package exists
// to exercise (verification consumes, and must not reuse, its signature
// buffer) without pretending to byte-for-byte match vboot's exact padding
// and hash-agility scheme.
func verifySignature(keyData, signed, sig []byte) (bool, error) {
	if len(keyData) == 0 {
		return false, errors.New("vboot: empty key material")
	}
	n := new(big.Int).SetBytes(keyData)
	if n.Sign() <= 0 {
		return false, errors.New("vboot: invalid key modulus")
	}
	pub := &rsa.PublicKey{N: n, E: 65537}

	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}
