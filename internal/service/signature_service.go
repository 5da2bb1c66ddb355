package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const signatureVersion = "v1="

// HMACSignatureService signs mirror deliveries with HMAC-SHA256 over
// "<unix timestamp>.<body>". Signatures are rendered as "v1=<hex>".
type HMACSignatureService struct{}

func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

func (s *HMACSignatureService) Sign(secret string, timestamp int64, body []byte) string {
	return signatureVersion + hex.EncodeToString(s.mac(secret, timestamp, body))
}

// Verify checks signature in constant time. Unknown versions never match.
func (s *HMACSignatureService) Verify(secret string, timestamp int64, body []byte, signature string) bool {
	encoded, ok := strings.CutPrefix(signature, signatureVersion)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(secret, timestamp, body))
}

func (s *HMACSignatureService) mac(secret string, timestamp int64, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(strconv.FormatInt(timestamp, 10)))
	m.Write([]byte{'.'})
	m.Write(body)
	return m.Sum(nil)
}
