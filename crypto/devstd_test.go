package crypto

import (
	"encoding/hex"
	"testing"
)

func TestDevStdSHA3_256_KnownVector(t *testing.T) {
	p := DevStdCryptoProvider{}
	sum := p.SHA3_256([]byte("abc"))
	// SHA3-256("abc")
	const want = "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"
	got := hex.EncodeToString(sum[:])
	if got != want {
		t.Fatalf("digest mismatch: got=%s want=%s", got, want)
	}
}

func TestDevStdVerifyMLDSA87_RoundtripAndTamper(t *testing.T) {
	p := DevStdCryptoProvider{}
	pub, priv, err := p.GenerateMLDSA87()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digest := p.SHA3_256([]byte("supernova block header"))
	sig, err := p.SignMLDSA87(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !p.VerifyMLDSA87(pub, sig, digest) {
		t.Fatalf("valid ML-DSA-87 signature failed to verify")
	}

	tamperedDigest := p.SHA3_256([]byte("supernova block header, modified"))
	if p.VerifyMLDSA87(pub, sig, tamperedDigest) {
		t.Fatalf("ML-DSA-87 signature verified against a different digest")
	}

	tamperedSig := append([]byte(nil), sig...)
	tamperedSig[0] ^= 0xff
	if p.VerifyMLDSA87(pub, tamperedSig, digest) {
		t.Fatalf("tampered ML-DSA-87 signature unexpectedly verified")
	}
}

func TestDevStdVerifyMLDSA87_RejectsMalformedInput(t *testing.T) {
	p := DevStdCryptoProvider{}
	var d [32]byte
	if p.VerifyMLDSA87(make([]byte, ML_DSA_PUBKEY_BYTES), make([]byte, ML_DSA_SIG_BYTES), d) {
		t.Fatalf("VerifyMLDSA87 unexpectedly returned true for all-zero junk input")
	}
	if p.VerifyMLDSA87(make([]byte, 3), make([]byte, 3), d) {
		t.Fatalf("VerifyMLDSA87 unexpectedly returned true for undersized input")
	}
}

func TestDevStdVerifySLHDSA_Roundtrip(t *testing.T) {
	p := DevStdCryptoProvider{}
	pub, priv, err := p.GenerateSLHDSASHAKE256f()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	digest := p.SHA3_256([]byte("supernova htlc refund"))
	sig, err := p.SignSLHDSASHAKE256f(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !p.VerifySLHDSASHAKE_256f(pub, sig, digest) {
		t.Fatalf("valid SLH-DSA-SHAKE-256f signature failed to verify")
	}
}

func TestDevStdVerifySLHDSA_RejectsMalformedInput(t *testing.T) {
	p := DevStdCryptoProvider{}
	var d [32]byte
	if p.VerifySLHDSASHAKE_256f(make([]byte, SLH_DSA_PUBKEY_BYTES), make([]byte, 1), d) {
		t.Fatalf("VerifySLHDSASHAKE_256f unexpectedly returned true for junk input")
	}
}

func TestDevStdKEM_Roundtrip(t *testing.T) {
	p := DevStdCryptoProvider{}
	pub, priv, err := p.KEMGenerateKeypair()
	if err != nil {
		t.Fatalf("kem keygen: %v", err)
	}
	ct, ss1, err := p.KEMEncapsulate(pub)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	ss2, err := p.KEMDecapsulate(priv, ct)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if hex.EncodeToString(ss1) != hex.EncodeToString(ss2) {
		t.Fatalf("shared secret mismatch after decapsulate")
	}
}
