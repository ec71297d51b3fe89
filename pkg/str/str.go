package str

import (
	"crypto/rand"
	"math/big"
)

const (
	// LowerAlphabet lower alphabet chars
	LowerAlphabet = "abcdefghijklmnopqrstuvwxyz"
	// Numerals numeral chars
	Numerals = "1234567890"
	// LowerAlphanumeric lower alphabet and numeral chars
	LowerAlphanumeric = LowerAlphabet + Numerals
)

// RandString inspired from https://github.com/jmcvetta/randutil/blob/master/randutil.go
func RandString(length int, charset string) string {
	str := make([]byte, length)
	if charset == "" {
		charset = LowerAlphanumeric
	}
	charlen := big.NewInt(int64(len(charset)))
	for i := 0; i < length; i++ {
		v, _ := rand.Int(rand.Reader, charlen)
		str[i] = charset[int(v.Int64())]
	}
	return string(str)
}

// GenRunId generates a short id for a stream run
func GenRunId() string {
	return RandString(16, LowerAlphanumeric)
}
