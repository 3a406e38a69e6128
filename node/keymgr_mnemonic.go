package main

import (
	"encoding/hex"
	"flag"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
)

// addressVersion tags the byte prepended before base58check encoding, so a
// supernova address can never be mistaken for a Bitcoin one if copy-pasted.
const addressVersion = 0x3f

// cmdKeymgrNewMnemonic generates a fresh BIP-39 mnemonic and its derived
// 64-byte seed. The seed is not itself a usable ML-DSA-87/SLH-DSA private
// key — operators feed it into an HSM/KDF out of band — this subcommand only
// covers the human-facing recovery-phrase step of wallet setup.
func cmdKeymgrNewMnemonic(argv []string) (string, error) {
	fs := flag.NewFlagSet("keymgr new-mnemonic", flag.ExitOnError)
	bits := fs.Int("entropy-bits", 256, "entropy size: 128, 160, 192, 224, or 256")
	passphrase := fs.String("passphrase", "", "optional BIP-39 passphrase")
	_ = fs.Parse(argv)

	entropy, err := bip39.NewEntropy(*bits)
	if err != nil {
		return "", fmt.Errorf("mnemonic entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("mnemonic encode: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, *passphrase)
	return fmt.Sprintf("%s\nseed_hex=%s", mnemonic, hex.EncodeToString(seed)), nil
}

// cmdKeymgrAddress renders a base58check address from a keystore's pubkey, a
// shorter human-facing identifier than the full key_id hex printed by
// verify-pubkey.
func cmdKeymgrAddress(argv []string) (string, error) {
	fs := flag.NewFlagSet("keymgr address", flag.ExitOnError)
	in := fs.String("in", "", "input keystore json path")
	_ = fs.Parse(argv)
	if *in == "" {
		return "", fmt.Errorf("missing required flag: --in")
	}

	ks, err := readKeystore(*in)
	if err != nil {
		return "", err
	}
	pub, err := hexDecodeStrict(ks.PubkeyHex)
	if err != nil {
		return "", fmt.Errorf("pubkey_hex: %w", err)
	}

	p, cleanup, err := loadCryptoProvider()
	if err != nil {
		return "", err
	}
	defer cleanup()
	keyID := p.SHA3_256(pub)

	payload := make([]byte, 0, 1+len(keyID)+4)
	payload = append(payload, addressVersion)
	payload = append(payload, keyID[:]...)
	checksum := p.SHA3_256(payload)
	payload = append(payload, checksum[:4]...)
	return base58.Encode(payload), nil
}
