// Package headerauth validates the security header set carried by protected
// requests and verifies the full-request integrity hash.
package headerauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Header names.
const (
	HeaderToken       = "X-Req"
	HeaderRequestHash = "X-Full-Request-Hash"
	HeaderDeviceModel = "X-Device-Model"
	HeaderOSVersion   = "X-OS-Version"
	HeaderWindow      = "X-Request-Window"
	HeaderKeyMaterial = "X-Req-Key"
	HeaderNextToken   = "X-Req-Next"
)

const (
	maxDeviceModel = 100
	maxOSVersion   = 50
)

var hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// required lists the mandatory headers in check order.
var required = []string{HeaderToken, HeaderRequestHash, HeaderDeviceModel, HeaderOSVersion, HeaderWindow}

// MissingHeaderError reports an absent mandatory header.
type MissingHeaderError struct {
	Name string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing security header %s", e.Name)
}

// InvalidFormatError reports a present header with an unacceptable value.
type InvalidFormatError struct {
	Name   string
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid security header %s: %s", e.Name, e.Reason)
}

// SecurityHeaders is the typed view of a protected request's headers,
// populated once per request.
type SecurityHeaders struct {
	Token       string
	RequestHash string
	DeviceModel string
	OSVersion   string
	Window      string
	// KeyMaterial is optional; absent means derive from the master secret.
	KeyMaterial string
}

// Count reports how many security headers were supplied.
func (h SecurityHeaders) Count() int {
	n := 0
	for _, v := range []string{h.Token, h.RequestHash, h.DeviceModel, h.OSVersion, h.Window, h.KeyMaterial} {
		if v != "" {
			n++
		}
	}
	return n
}

// Parse extracts and validates the security headers. It returns a
// *MissingHeaderError or *InvalidFormatError on failure.
func Parse(header http.Header) (SecurityHeaders, error) {
	for _, name := range required {
		if strings.TrimSpace(header.Get(name)) == "" {
			return SecurityHeaders{}, &MissingHeaderError{Name: name}
		}
	}

	h := SecurityHeaders{
		Token:       strings.TrimSpace(header.Get(HeaderToken)),
		RequestHash: strings.TrimSpace(header.Get(HeaderRequestHash)),
		DeviceModel: strings.TrimSpace(header.Get(HeaderDeviceModel)),
		OSVersion:   strings.TrimSpace(header.Get(HeaderOSVersion)),
		Window:      strings.TrimSpace(header.Get(HeaderWindow)),
		KeyMaterial: strings.TrimSpace(header.Get(HeaderKeyMaterial)),
	}

	if !hashPattern.MatchString(h.RequestHash) {
		return SecurityHeaders{}, &InvalidFormatError{Name: HeaderRequestHash, Reason: "must be 64 hex characters"}
	}
	if utf8.RuneCountInString(h.DeviceModel) > maxDeviceModel {
		return SecurityHeaders{}, &InvalidFormatError{Name: HeaderDeviceModel, Reason: fmt.Sprintf("exceeds %d characters", maxDeviceModel)}
	}
	if utf8.RuneCountInString(h.OSVersion) > maxOSVersion {
		return SecurityHeaders{}, &InvalidFormatError{Name: HeaderOSVersion, Reason: fmt.Sprintf("exceeds %d characters", maxOSVersion)}
	}
	if _, err := strconv.ParseUint(h.Window, 10, 64); err != nil {
		return SecurityHeaders{}, &InvalidFormatError{Name: HeaderWindow, Reason: "must be numeric"}
	}
	return h, nil
}
