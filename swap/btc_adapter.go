package swap

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Minimal Bitcoin script opcodes, just enough to assemble and scan the HTLC
// redeem script below — this adapter is not a general script interpreter.
const (
	opIF             = 0x63
	opELSE           = 0x67
	opENDIF          = 0x68
	opSHA256         = 0xa8
	opEQUALVERIFY    = 0x88
	opEQUAL          = 0x87
	opDUP            = 0x76
	opHASH160        = 0xa9
	opCHECKSIG       = 0xac
	opDROP           = 0x75
	opCHECKLOCKTIMEV = 0xb1
)

// pushData encodes a data push the way Bitcoin script requires for small
// (<= 75 byte) payloads, which is all this adapter ever pushes.
func pushData(b []byte) ([]byte, error) {
	if len(b) > 75 {
		return nil, fmt.Errorf("swap: push data too large for direct push: %d bytes", len(b))
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, byte(len(b)))
	return append(out, b...), nil
}

func pushInt(n int64) []byte {
	if n == 0 {
		return []byte{0x00}
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append(b, byte(n&0xff))
		n >>= 8
	}
	if b[len(b)-1]&0x80 != 0 {
		if neg {
			b = append(b, 0x80)
		} else {
			b = append(b, 0x00)
		}
	} else if neg {
		b[len(b)-1] |= 0x80
	}
	out := make([]byte, 0, len(b)+1)
	out = append(out, byte(len(b)))
	return append(out, b...)
}

// BuildHTLCScript assembles a BIP-199-style HTLC redeem script: the claimer
// can spend by revealing a preimage of hashlock before locktimeHeight; past
// that height the refunder can reclaim via CHECKLOCKTIMEVERIFY.
//
//	OP_IF
//	  OP_SHA256 <hashlock> OP_EQUALVERIFY <claimerPubkey> OP_CHECKSIG
//	OP_ELSE
//	  <locktimeHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP <refunderPubkey> OP_CHECKSIG
//	OP_ENDIF
func BuildHTLCScript(claimerPubkey, refunderPubkey *btcec.PublicKey, hashlock [32]byte, locktimeHeight int64) ([]byte, error) {
	hlPush, err := pushData(hashlock[:])
	if err != nil {
		return nil, err
	}
	claimerPush, err := pushData(claimerPubkey.SerializeCompressed())
	if err != nil {
		return nil, err
	}
	refunderPush, err := pushData(refunderPubkey.SerializeCompressed())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(opIF)
	buf.WriteByte(opSHA256)
	buf.Write(hlPush)
	buf.WriteByte(opEQUALVERIFY)
	buf.Write(claimerPush)
	buf.WriteByte(opCHECKSIG)
	buf.WriteByte(opELSE)
	buf.Write(pushInt(locktimeHeight))
	buf.WriteByte(opCHECKLOCKTIMEV)
	buf.WriteByte(opDROP)
	buf.Write(refunderPush)
	buf.WriteByte(opCHECKSIG)
	buf.WriteByte(opENDIF)
	return buf.Bytes(), nil
}

// ScriptHash returns the double-SHA256 commitment to script, used as the
// funding output's identifying digest the same way chainhash.Hash commits to
// a transaction or block.
func ScriptHash(script []byte) chainhash.Hash {
	return chainhash.DoubleHashH(script)
}

// ParsePublicKey validates a compressed or uncompressed secp256k1 pubkey for
// use as a claimer/refunder key in BuildHTLCScript.
func ParsePublicKey(b []byte) (*btcec.PublicKey, error) {
	pk, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("swap: invalid bitcoin-leg pubkey: %w", err)
	}
	return pk, nil
}

// ScanWitnessForPreimage inspects a claim transaction's witness stack (as
// decoded push-data items) for a 32-byte element whose SHA-256 equals
// hashlock — the preimage-scan monitor loop's core primitive for detecting
// that the counterparty claimed the Bitcoin leg and the preimage is now
// public.
func ScanWitnessForPreimage(witnessItems [][]byte, hashlock [32]byte) ([]byte, bool) {
	for _, item := range witnessItems {
		if len(item) != 32 {
			continue
		}
		if sha256.Sum256(item) == hashlock {
			return item, true
		}
	}
	return nil, false
}
