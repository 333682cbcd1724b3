package common

import "crypto/rand"

// crockford is the Crockford base32 alphabet: no I, L, O or U, so codes
// survive being read aloud or typed by hand.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// MakeRandCode returns n characters drawn uniformly from the Crockford base32
// alphabet.
func MakeRandCode(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		// 256 is a multiple of 32, so the modulo keeps the distribution uniform.
		b[i] = crockford[int(b[i])%len(crockford)]
	}
	return string(b), nil
}
