package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// tokenByteLength gives 256 bits of entropy, 64 hex characters.
const tokenByteLength = 32

// GenerateSecureToken returns a hex-encoded token from crypto/rand.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateAdminKey returns a fresh admin API key and the bcrypt hash the
// API compares bearer keys against. Only the hash is stored in SSM.
func GenerateAdminKey() (plain, hash string, err error) {
	plain, err = GenerateSecureToken()
	if err != nil {
		return "", "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing admin key: %w", err)
	}
	return plain, string(h), nil
}
