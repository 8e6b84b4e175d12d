package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethra/gridbase/internal/models"
)

func TestMysqlDSN(t *testing.T) {
	base := &models.Base{
		Host:     "h",
		Port:     3306,
		Username: "u",
		Database: "d",
	}

	dsn := mysqlDSN(base, "pw")

	assert.True(t, strings.HasPrefix(dsn, "u:pw@tcp(h:3306)/d?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	// ANSI_QUOTES so the engine's double-quoted identifiers work on
	// mysql's default sql_mode too.
	assert.Contains(t, dsn, "sql_mode=%27ANSI_QUOTES%27")
}

func TestCredentialEncryptRoundTrip(t *testing.T) {
	bm := NewBaseManager(nil, nil, "test-encryption-key")

	ciphertext, err := bm.Encrypt("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", ciphertext)

	plaintext, err := bm.decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plaintext)

	// Empty credential stays empty.
	plaintext, err = bm.decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)

	other := NewBaseManager(nil, nil, "different-key")
	_, err = other.decrypt(ciphertext)
	assert.Error(t, err)
}
