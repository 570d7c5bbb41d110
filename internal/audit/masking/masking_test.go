package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "sess_****3456", MaskSecret("sess_abcdef123456"))
	assert.Equal(t, "****wxyz", MaskSecret("tokenwxyz"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "o****@example.com", MaskEmail(" Ops@Example.com "))
	assert.Equal(t, "****", MaskEmail("@x"))
}

func TestMaskMetadataCopiesInput(t *testing.T) {
	in := map[string]any{"token": "abcdefgh", "count": 2}
	out := MaskMetadata(in, "token")

	assert.Equal(t, "****efgh", out["token"])
	assert.Equal(t, 2, out["count"])
	assert.Equal(t, "abcdefgh", in["token"])
	assert.Nil(t, MaskMetadata(nil))
}
