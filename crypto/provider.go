package crypto

// CryptoProvider is the narrow crypto interface used by consensus code.
// Implementations may provide wolfCrypt or native backends.
type CryptoProvider interface {
	SHA3_256(input []byte) [32]byte

	// VerifyMLDSA87 verifies an ML-DSA-87 signature (the primary quantum suite).
	// It must return false on any malformed pubkey/signature rather than panic.
	VerifyMLDSA87(pubkey []byte, sig []byte, digest32 [32]byte) bool
	// VerifySLHDSASHAKE_256f verifies an SLH-DSA-SHAKE-256f signature (the fallback
	// quantum suite, used once SuiteIDSLHActive is set).
	VerifySLHDSASHAKE_256f(pubkey []byte, sig []byte, digest32 [32]byte) bool

	// GenerateMLDSA87 creates a fresh ML-DSA-87 keypair.
	GenerateMLDSA87() (pubkey, privkey []byte, err error)
	// SignMLDSA87 signs digest32 with an ML-DSA-87 private key produced by GenerateMLDSA87.
	SignMLDSA87(privkey []byte, digest32 [32]byte) (sig []byte, err error)

	// GenerateSLHDSASHAKE256f creates a fresh SLH-DSA-SHAKE-256f keypair.
	GenerateSLHDSASHAKE256f() (pubkey, privkey []byte, err error)
	// SignSLHDSASHAKE256f signs digest32 with an SLH-DSA-SHAKE-256f private key.
	SignSLHDSASHAKE256f(privkey []byte, digest32 [32]byte) (sig []byte, err error)

	// KEMEncapsulate generates a shared secret and its ciphertext for peerPub (an
	// ML-KEM-768 public key), used to derive a channel-setup session key.
	KEMEncapsulate(peerPub []byte) (ciphertext, sharedSecret []byte, err error)
	// KEMDecapsulate recovers the shared secret from ciphertext using an ML-KEM-768
	// private key.
	KEMDecapsulate(priv []byte, ciphertext []byte) (sharedSecret []byte, err error)
	// KEMGenerateKeypair creates a fresh ML-KEM-768 keypair for channel setup.
	KEMGenerateKeypair() (pubkey, privkey []byte, err error)
}
