package cryptox

import (
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

const (
	CharsetNumeric      = "0123456789"
	CharsetAlphaNumeric = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// CharsetReadable drops characters that are easy to confuse when read aloud or retyped.
	CharsetReadable = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	maxAlphabet = 1 << 16

	// IDEntropyBits is the entropy of every identifier produced by RandomID.
	IDEntropyBits = 128
)

// RandomBytes reads size bytes from the CSPRNG.
func (e *Envelope) RandomBytes(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size", common.ErrorInvalidInput)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(e.random, b); err != nil {
		return nil, fmt.Errorf("random: %w", err)
	}
	return b, nil
}

// RandomCharacters returns length characters drawn uniformly from alphabet.
// Draws that would bias the distribution are rejected, so every character
// in the alphabet is equally likely.
func (e *Envelope) RandomCharacters(length int, alphabet string) (string, error) {
	pool := []rune(alphabet)
	n := len(pool)
	if n < 2 || n > maxAlphabet {
		return "", fmt.Errorf("%w: alphabet must hold between 2 and %d characters", common.ErrorInvalidInput, maxAlphabet)
	}
	if length < 0 {
		return "", fmt.Errorf("%w: negative length", common.ErrorInvalidInput)
	}

	limit := maxAlphabet - maxAlphabet%n
	out := make([]rune, 0, length)
	buf := make([]byte, 2*(length+8))
	for len(out) < length {
		if _, err := io.ReadFull(e.random, buf); err != nil {
			return "", fmt.Errorf("random: %w", err)
		}
		for i := 0; i+1 < len(buf) && len(out) < length; i += 2 {
			v := int(buf[i])<<8 | int(buf[i+1])
			if v >= limit {
				continue
			}
			out = append(out, pool[v%n])
		}
	}
	common.WipeByteArray(buf)
	return string(out), nil
}

// RandomID returns prefix followed by an alphanumeric string carrying
// IDEntropyBits of entropy.
func (e *Envelope) RandomID(prefix string) (string, error) {
	s, err := e.RandomCharacters(EntropyToCharacterLength(IDEntropyBits, len(CharsetAlphaNumeric)), CharsetAlphaNumeric)
	if err != nil {
		return "", err
	}
	return prefix + s, nil
}

// EntropyToCharacterLength is the number of characters from a pool of
// poolSize needed to carry bits of entropy.
func EntropyToCharacterLength(bits, poolSize int) int {
	if bits <= 0 || poolSize < 2 {
		return 0
	}
	return int(math.Ceil(float64(bits) * math.Ln2 / math.Log(float64(poolSize))))
}

// CharacterPoolSize counts the characters in alphabet.
func CharacterPoolSize(alphabet string) int {
	return utf8.RuneCountInString(alphabet)
}
