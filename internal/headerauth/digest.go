package headerauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// NormalizeURI returns the cleaned path, followed by the sorted query when present.
func NormalizeURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	p = path.Clean(p)
	if q := u.Query(); len(q) > 0 {
		return p + "?" + q.Encode()
	}
	return p
}

// Digest computes the canonical full-request hash as lowercase hex.
func Digest(method string, u *url.URL, window string, accountID int64, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(NormalizeURI(u)))
	h.Write([]byte{'\n'})
	h.Write([]byte(window))
	h.Write([]byte{'\n'})
	h.Write([]byte(strconv.FormatInt(accountID, 10)))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDigest compares the received hash with the canonical digest in
// constant time, ignoring hex case.
func VerifyDigest(received, method string, u *url.URL, window string, accountID int64, body []byte) bool {
	want := Digest(method, u, window, accountID, body)
	got := strings.ToLower(received)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
