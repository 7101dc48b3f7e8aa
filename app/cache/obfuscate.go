package cache

import (
	"encoding/base64"
	"errors"
)

// obfuscationKey only keeps payloads from being readable at a glance. It is
// not encryption.
var obfuscationKey = []byte("cal-comb/kv")

func Obfuscate(data []byte) string {
	return base64.StdEncoding.EncodeToString(xor(data))
}

func Deobfuscate(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("invalid obfuscated payload")
	}
	return xor(data), nil
}

func xor(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}
