package utils

import (
    "crypto/rand"
    "crypto/sha256"
    "crypto/subtle"
    "encoding/hex"
    "strings"

    "golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters for both passwords and one-time codes. The salt is
// stored alongside the derived key, so verification needs no external
// parameters.
const (
    kdfIterations = 100_000
    kdfSaltLen    = 16
    kdfKeyLen     = 32
)

// HashSecret derives a PBKDF2-HMAC-SHA256 hash with a fresh random salt
// and returns it in self-describing "saltHex:keyHex" form.
func HashSecret(plain string) (string, error) {
    salt := make([]byte, kdfSaltLen)
    if _, err := rand.Read(salt); err != nil {
        return "", err
    }
    key := pbkdf2.Key([]byte(plain), salt, kdfIterations, kdfKeyLen, sha256.New)
    return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifySecret recomputes the derivation with the stored salt and
// compares against the stored key in constant time, so a mismatch takes
// as long as a match regardless of where the first wrong byte is.
func VerifySecret(plain, encoded string) bool {
    saltHex, keyHex, ok := strings.Cut(encoded, ":")
    if !ok {
        return false
    }
    salt, err := hex.DecodeString(saltHex)
    if err != nil {
        return false
    }
    want, err := hex.DecodeString(keyHex)
    if err != nil || len(want) == 0 {
        return false
    }
    got := pbkdf2.Key([]byte(plain), salt, kdfIterations, len(want), sha256.New)
    return subtle.ConstantTimeCompare(got, want) == 1
}
