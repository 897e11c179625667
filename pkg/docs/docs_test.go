package docs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLText(t *testing.T) {
	in := `<p>Clean <b>water</b> for</p><script>alert(1)</script><ul><li>Kenya</li><li>Uganda</li></ul>`
	assert.Equal(t, "Clean water for Kenya Uganda", HTMLText(in))
	assert.Equal(t, "plain text", HTMLText("  plain \n text "))
	assert.Equal(t, "", HTMLText(""))
}

func TestText(t *testing.T) {
	ctx := context.Background()

	got, err := Text(ctx, "notes.TXT", []byte("a\x00b\n\nc"))
	require.NoError(t, err)
	assert.Equal(t, "a b c", got)

	got, err = Text(ctx, "page.html", []byte("<div>Health <i>clinic</i></div>"))
	require.NoError(t, err)
	assert.Equal(t, "Health clinic", got)

	_, err = Text(ctx, "deck.pptx", []byte("x"))
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Text(ctx, "broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo world", 5))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "keep", Truncate("keep", 0))
}
