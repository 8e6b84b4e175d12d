package api

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/gridbase/internal/models"
)

func TestAttachmentSignerSignsPaths(t *testing.T) {
	transform := NewAttachmentSigner("secret", time.Hour)
	col := &models.Column{Title: "Files", UIDT: models.UITypeAttachment}

	raw := `[{"path":"uploads/a.png","title":"a.png"}]`
	out := transform(col, raw)

	attachments, ok := out.([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, attachments, 1)

	signed, ok := attachments[0]["signedPath"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(signed, "uploads/a.png?expires="))

	// Round-trip: the signed path verifies with the same secret.
	parts := strings.SplitN(signed, "?", 2)
	var expiresAt int64
	var sig string
	for _, kv := range strings.Split(parts[1], "&") {
		pair := strings.SplitN(kv, "=", 2)
		switch pair[0] {
		case "expires":
			n, err := strconv.ParseInt(pair[1], 10, 64)
			require.NoError(t, err)
			expiresAt = n
		case "sig":
			sig = pair[1]
		}
	}

	assert.True(t, VerifyAttachmentSignature("secret", "uploads/a.png", expiresAt, sig))
	assert.False(t, VerifyAttachmentSignature("wrong", "uploads/a.png", expiresAt, sig))
	assert.False(t, VerifyAttachmentSignature("secret", "uploads/b.png", expiresAt, sig))
}

func TestAttachmentSignerPassesThroughOtherCells(t *testing.T) {
	transform := NewAttachmentSigner("secret", time.Hour)

	text := &models.Column{Title: "Name", UIDT: models.UITypeSingleLineText}
	assert.Equal(t, "Ada", transform(text, "Ada"))

	files := &models.Column{Title: "Files", UIDT: models.UITypeAttachment}
	assert.Nil(t, transform(files, nil))
	assert.Equal(t, "not json", transform(files, "not json"))
}

func TestVerifyAttachmentSignatureExpired(t *testing.T) {
	expiresAt := time.Now().Add(-time.Minute).Unix()
	sig := fmt.Sprintf("%x", make([]byte, 32))
	assert.False(t, VerifyAttachmentSignature("secret", "uploads/a.png", expiresAt, sig))
}
