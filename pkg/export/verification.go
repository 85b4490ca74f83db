package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const verificationMACBytes = 10

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// VerificationCode encodes reference and issue time with a truncated HMAC so a
// printed authorization can be checked without access to the document itself.
func VerificationCode(secret []byte, reference string, issuedAt time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("verification secret missing")
	}
	if reference == "" {
		return "", fmt.Errorf("reference required")
	}
	body := reference + "|" + strconv.FormatInt(issuedAt.Unix(), 10)
	return codeEncoding.EncodeToString([]byte(body)) + "." + codeEncoding.EncodeToString(codeMAC(secret, body)), nil
}

// ParseVerificationCode checks the code and returns the embedded reference and time.
func ParseVerificationCode(secret []byte, code string) (string, time.Time, error) {
	parts := strings.Split(strings.TrimSpace(code), ".")
	if len(parts) != 2 {
		return "", time.Time{}, fmt.Errorf("malformed verification code")
	}
	body, err := codeEncoding.DecodeString(strings.ToUpper(parts[0]))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed verification code: %w", err)
	}
	mac, err := codeEncoding.DecodeString(strings.ToUpper(parts[1]))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed verification code: %w", err)
	}
	if !hmac.Equal(mac, codeMAC(secret, string(body))) {
		return "", time.Time{}, fmt.Errorf("verification code does not match")
	}
	fields := strings.SplitN(string(body), "|", 2)
	if len(fields) != 2 {
		return "", time.Time{}, fmt.Errorf("malformed verification code")
	}
	unix, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed verification timestamp")
	}
	return fields[0], time.Unix(unix, 0).UTC(), nil
}

func codeMAC(secret []byte, body string) []byte {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(body))
	return h.Sum(nil)[:verificationMACBytes]
}
