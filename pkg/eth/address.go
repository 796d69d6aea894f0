package eth

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of an Ethereum address.
const AddressLength = 20

// IsHexAddress reports whether s looks like a 0x-prefixed 20-byte hex address.
func IsHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	body := s[2:]
	if len(body) != AddressLength*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// Normalize lowercases a hex address for use as a map or storage key.
func Normalize(s string) string {
	return strings.ToLower(s)
}

// Equal compares two addresses ignoring checksum casing.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

// Checksum re-encodes a hex address with its EIP-55 mixed-case checksum.
// The input must already be a valid hex address.
func Checksum(s string) string {
	body := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(body))
	hash := hasher.Sum(nil)

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' {
			// Uppercase when the corresponding nibble of the hash is >= 8.
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				c = c - 'a' + 'A'
			}
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// ValidChecksum reports whether the address carries a correct EIP-55
// checksum. All-lowercase and all-uppercase forms are accepted as
// unchecksummed but valid.
func ValidChecksum(s string) bool {
	if !IsHexAddress(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return Checksum(s) == "0x"+body
}
