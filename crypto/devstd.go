package crypto

import "golang.org/x/crypto/sha3"

// DevStdCryptoProvider is the software (non-HSM) CryptoProvider. It performs
// real ML-DSA-87 / SLH-DSA-SHAKE-256f / ML-KEM-768 operations via circl and
// liboqs-go; it does NOT claim FIPS compliance for the *process* (no
// tamper-resistant key storage), only for the algorithms themselves.
type DevStdCryptoProvider struct{}

func (p DevStdCryptoProvider) SHA3_256(input []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(input)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (p DevStdCryptoProvider) VerifyMLDSA87(pubkey, sig []byte, digest32 [32]byte) bool {
	return verifyMLDSA87(pubkey, sig, digest32)
}

func (p DevStdCryptoProvider) VerifySLHDSASHAKE_256f(pubkey, sig []byte, digest32 [32]byte) bool {
	return verifySLHDSASHAKE256f(pubkey, sig, digest32)
}

func (p DevStdCryptoProvider) GenerateMLDSA87() (pubkey, privkey []byte, err error) {
	return generateMLDSA87()
}

func (p DevStdCryptoProvider) SignMLDSA87(privkey []byte, digest32 [32]byte) ([]byte, error) {
	return signMLDSA87(privkey, digest32)
}

func (p DevStdCryptoProvider) GenerateSLHDSASHAKE256f() (pubkey, privkey []byte, err error) {
	return generateSLHDSASHAKE256f()
}

func (p DevStdCryptoProvider) SignSLHDSASHAKE256f(privkey []byte, digest32 [32]byte) ([]byte, error) {
	return signSLHDSASHAKE256f(privkey, digest32)
}

func (p DevStdCryptoProvider) KEMEncapsulate(peerPub []byte) (ciphertext, sharedSecret []byte, err error) {
	return kemEncapsulate(peerPub)
}

func (p DevStdCryptoProvider) KEMDecapsulate(priv, ciphertext []byte) ([]byte, error) {
	return kemDecapsulate(priv, ciphertext)
}

func (p DevStdCryptoProvider) KEMGenerateKeypair() (pubkey, privkey []byte, err error) {
	return kemGenerateKeypair()
}
