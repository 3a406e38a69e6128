package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/open-quantum-safe/liboqs-go/oqs"
)

// slhDSAAlgName is the liboqs algorithm identifier for SLH-DSA-SHAKE-256f, the
// fallback quantum suite (SUITE_ID_SLH_DSA).
const slhDSAAlgName = "SLH-DSA-SHAKE-256f"

// Canonical key and signature sizes of the quantum suites, mirroring the
// consensus constants of the same names (crypto must not import consensus).
const (
	ML_DSA_PUBKEY_BYTES   = 2592
	ML_DSA_SIG_BYTES      = 4_627
	SLH_DSA_PUBKEY_BYTES  = 64
	SLH_DSA_SIG_MAX_BYTES = 49_856
)

// verifyMLDSA87 verifies an ML-DSA-87 detached signature over digest32. Any
// malformed pubkey/signature is treated as verification failure, never a panic
// or an error return — callers only need a bool.
func verifyMLDSA87(pubkey, sig []byte, digest32 [32]byte) bool {
	if len(pubkey) != mldsa87.PublicKeySize || len(sig) != mldsa87.SignatureSize {
		return false
	}
	var pk mldsa87.PublicKey
	if err := pk.UnmarshalBinary(pubkey); err != nil {
		return false
	}
	return mldsa87.Verify(&pk, digest32[:], nil, sig)
}

func generateMLDSA87() (pubkey, privkey []byte, err error) {
	pub, priv, err := mldsa87.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: ml-dsa-87 keygen: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pubBytes, privBytes, nil
}

func signMLDSA87(privkey []byte, digest32 [32]byte) ([]byte, error) {
	if len(privkey) != mldsa87.PrivateKeySize {
		return nil, fmt.Errorf("crypto: ml-dsa-87 private key must be %d bytes", mldsa87.PrivateKeySize)
	}
	var sk mldsa87.PrivateKey
	if err := sk.UnmarshalBinary(privkey); err != nil {
		return nil, fmt.Errorf("crypto: ml-dsa-87 private key: %w", err)
	}
	sig := make([]byte, mldsa87.SignatureSize)
	mldsa87.SignTo(&sk, digest32[:], nil, false, sig)
	return sig, nil
}

// verifySLHDSASHAKE256f verifies an SLH-DSA-SHAKE-256f signature via liboqs.
// This suite is only activated at a governance-controlled height
// (BlockValidationContext.SuiteIDSLHActive); the caller enforces that gate,
// not this function.
func verifySLHDSASHAKE256f(pubkey, sig []byte, digest32 [32]byte) bool {
	if len(pubkey) != SLH_DSA_PUBKEY_BYTES || len(sig) == 0 || len(sig) > SLH_DSA_SIG_MAX_BYTES {
		return false
	}
	verifier := oqs.Signature{}
	if err := verifier.Init(slhDSAAlgName, nil); err != nil {
		return false
	}
	defer verifier.Clean()
	ok, err := verifier.Verify(digest32[:], sig, pubkey)
	if err != nil {
		return false
	}
	return ok
}

func generateSLHDSASHAKE256f() (pubkey, privkey []byte, err error) {
	signer := oqs.Signature{}
	if err := signer.Init(slhDSAAlgName, nil); err != nil {
		return nil, nil, fmt.Errorf("crypto: slh-dsa init: %w", err)
	}
	pub, err := signer.GenerateKeyPair()
	if err != nil {
		signer.Clean()
		return nil, nil, fmt.Errorf("crypto: slh-dsa keygen: %w", err)
	}
	priv := signer.ExportSecretKey()
	signer.Clean()
	return pub, priv, nil
}

func signSLHDSASHAKE256f(privkey []byte, digest32 [32]byte) ([]byte, error) {
	signer := oqs.Signature{}
	if err := signer.Init(slhDSAAlgName, privkey); err != nil {
		return nil, fmt.Errorf("crypto: slh-dsa init with secret key: %w", err)
	}
	defer signer.Clean()
	sig, err := signer.Sign(digest32[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: slh-dsa sign: %w", err)
	}
	return sig, nil
}

// kemGenerateKeypair creates an ML-KEM-768 keypair used for channel-setup
// session-key agreement (P2P handshake, §4.1's kem_encapsulate/decapsulate).
func kemGenerateKeypair() (pubkey, privkey []byte, err error) {
	pub, priv, err := mlkem768.GenerateKeyPair(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: ml-kem-768 keygen: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pubBytes, privBytes, nil
}

func kemEncapsulate(peerPub []byte) (ciphertext, sharedSecret []byte, err error) {
	scheme := mlkem768.Scheme()
	pk, err := scheme.UnmarshalBinaryPublicKey(peerPub)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: ml-kem-768 peer pubkey: %w", err)
	}
	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: ml-kem-768 encapsulate: %w", err)
	}
	return ct, ss, nil
}

func kemDecapsulate(priv, ciphertext []byte) ([]byte, error) {
	scheme := mlkem768.Scheme()
	sk, err := scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("crypto: ml-kem-768 private key: %w", err)
	}
	ss, err := scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: ml-kem-768 decapsulate: %w", err)
	}
	return ss, nil
}
