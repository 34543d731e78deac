package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// Signer builds and verifies the signed URLs embedded in outgoing email.
// Click links carry an HMAC over (tracking id, destination) so the
// redirect endpoint cannot be abused as an open redirector.
type Signer struct {
	secret  []byte
	baseURL string
}

// NewSigner creates a Signer. baseURL is the externally reachable origin
// of the tracking server, without a trailing slash.
func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: baseURL}
}

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// PixelURL returns the open-tracking pixel URL for a recipient.
func (s *Signer) PixelURL(trackingID string) string {
	return s.baseURL + "/t/o/" + trackingID + ".gif"
}

// ClickURL returns the redirect URL wrapping dest for a recipient.
func (s *Signer) ClickURL(trackingID, dest string) string {
	return s.baseURL + "/t/c/" + trackingID +
		"?u=" + url.QueryEscape(dest) +
		"&s=" + s.sign(trackingID+"|"+dest)
}

// UnsubscribeURL returns the one-click unsubscribe URL for a recipient.
func (s *Signer) UnsubscribeURL(trackingID string) string {
	return s.baseURL + "/t/u/" + trackingID
}

// VerifyClick checks the signature on a click redirect.
func (s *Signer) VerifyClick(trackingID, dest, sig string) bool {
	expected := s.sign(trackingID + "|" + dest)
	return hmac.Equal([]byte(expected), []byte(sig))
}
