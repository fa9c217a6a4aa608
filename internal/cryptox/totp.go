package cryptox

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// TOTP verifies RFC 6238 codes (HMAC-SHA1).
type TOTP struct {
	Period int
	Digits int
	Skew   int
	Issuer string
}

// NewTOTP fills unset fields with the usual authenticator-app values.
func NewTOTP(period, digits, skew int, issuer string) *TOTP {
	if period <= 0 {
		period = 30
	}
	if digits <= 0 {
		digits = 6
	}
	if skew < 0 {
		skew = 0
	}
	return &TOTP{Period: period, Digits: digits, Skew: skew, Issuer: issuer}
}

// GenerateSecret returns a fresh raw secret and its base32 form.
func (t *TOTP) GenerateSecret(g Generator) ([]byte, string) {
	raw := g.RandomBytes(totpSecretBytes)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw)
}

// ProvisionURI builds the otpauth:// URI shown as a QR code at enrollment.
func (t *TOTP) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(t.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", t.Issuer)
	v.Set("period", strconv.Itoa(t.Period))
	v.Set("digits", strconv.Itoa(t.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify reports whether code matches secret at now, accepting Skew steps
// on either side.
func (t *TOTP) Verify(secret []byte, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(secret) == 0 || len(code) != t.Digits || !isDigits(code) {
		return false
	}

	base := now.Unix() / int64(t.Period)
	for step := -t.Skew; step <= t.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(t.Code(secret, counter)), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// Code computes the HOTP value for counter.
func (t *TOTP) Code(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < t.Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", t.Digits, bin%mod)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
