// Package api - attachment URL signing
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aethra/gridbase/internal/engine"
	"github.com/aethra/gridbase/internal/models"
)

// NewAttachmentSigner returns a cell transform that appends a signed,
// expiring token to every attachment URL of a projected row. Cells that
// are not attachment JSON pass through untouched.
func NewAttachmentSigner(secret string, expiry time.Duration) engine.CellTransform {
	key := []byte(secret)

	return func(col *models.Column, value interface{}) interface{} {
		if col.UIDT != models.UITypeAttachment || value == nil {
			return value
		}

		raw, ok := value.(string)
		if !ok || raw == "" {
			return value
		}

		var attachments []map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &attachments); err != nil {
			return value
		}

		expiresAt := time.Now().Add(expiry).Unix()
		for _, att := range attachments {
			path, ok := att["path"].(string)
			if !ok || path == "" {
				if url, ok := att["url"].(string); ok {
					path = url
				} else {
					continue
				}
			}
			att["signedPath"] = fmt.Sprintf("%s?expires=%d&sig=%s",
				path, expiresAt, signPath(key, path, expiresAt))
		}

		return attachments
	}
}

func signPath(key []byte, path string, expiresAt int64) string {
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s:%d", path, expiresAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyAttachmentSignature checks a signed attachment path.
func VerifyAttachmentSignature(secret, path string, expiresAt int64, sig string) bool {
	if time.Now().Unix() > expiresAt {
		return false
	}
	expected := signPath([]byte(secret), path, expiresAt)
	return hmac.Equal([]byte(expected), []byte(sig))
}
