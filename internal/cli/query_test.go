package cli

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 500))

	long := strings.Repeat("a", 499) + "éèà"
	got := preview(long, 500)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 499)+"é...", got)

	cyrillic := strings.Repeat("ж", 600)
	got = preview(cyrillic, 500)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 503, utf8.RuneCountInString(got))
}
