package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

//EncodeToString returns the UPPERCASE string representation of hexBytes with
//the 0X prefix
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

//DecodeFromString converts a hex string to a byte slice. The 0X prefix is
//optional because keys come back to us from URL paths as well as from our own
//encoder.
func DecodeFromString(hexString string) ([]byte, error) {
	s := hexString
	if len(s) >= 2 && (s[:2] == "0X" || s[:2] == "0x") {
		s = s[2:]
	}
	return hex.DecodeString(strings.ToLower(s))
}
