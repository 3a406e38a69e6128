//go:build !wolfcrypt_dylib

package main

import (
	"errors"
	"os"
	"strings"

	"supernova.dev/node/crypto"
)

func loadCryptoProvider() (crypto.CryptoProvider, func(), error) {
	if v := os.Getenv("SUPERNOVA_WOLFCRYPT_STRICT"); v == "1" || strings.EqualFold(v, "true") {
		return nil, nil, errors.New("SUPERNOVA_WOLFCRYPT_STRICT requires a build with the wolfcrypt_dylib tag")
	}
	return crypto.DevStdCryptoProvider{}, func() {}, nil
}

