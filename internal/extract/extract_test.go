package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtract_PlainText(t *testing.T) {
	e := New(zap.NewNop())

	text, err := e.Extract(context.Background(), "text/plain", []byte("hello world\nsecond line"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", text)
}

func TestExtract_PlainTextWithCharsetParam(t *testing.T) {
	e := New(zap.NewNop())

	text, err := e.Extract(context.Background(), "text/plain; charset=utf-8", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestExtract_EmptyPlainTextIsNotAnError(t *testing.T) {
	e := New(zap.NewNop())

	text, err := e.Extract(context.Background(), "text/plain", nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtract_InvalidUTF8(t *testing.T) {
	e := New(zap.NewNop())

	_, err := e.Extract(context.Background(), "text/plain", []byte{0xff, 0xfe, 0xfd})
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtract_UnsupportedMediaType(t *testing.T) {
	e := New(zap.NewNop())

	for _, mt := range []string{"image/png", "application/zip", "video/mp4", ""} {
		_, err := e.Extract(context.Background(), mt, []byte("data"))
		assert.ErrorIs(t, err, ErrUnsupportedMediaType, "media type %q", mt)
	}
}

func TestExtract_MalformedPDF(t *testing.T) {
	e := New(zap.NewNop())

	_, err := e.Extract(context.Background(), "application/pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtract_MalformedDOCX(t *testing.T) {
	e := New(zap.NewNop())

	_, err := e.Extract(context.Background(), MediaTypeDOCX, []byte("not a docx"))
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtract_CancelledContext(t *testing.T) {
	e := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, "text/plain", []byte("hello"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("text/plain"))
	assert.True(t, Supported("text/plain; charset=utf-8"))
	assert.True(t, Supported("text/markdown"))
	assert.True(t, Supported("application/pdf"))
	assert.True(t, Supported(MediaTypeDOCX))
	assert.False(t, Supported("image/png"))
	assert.False(t, Supported(""))
}

func TestStripControl(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keeps newline and tab", "a\nb\tc", "a\nb\tc"},
		{"drops nul and bell", "a\x00b\x07c", "abc"},
		{"drops carriage return", "a\r\nb", "a\nb"},
		{"drops delete", "a\x7fb", "ab"},
		{"keeps multibyte runes", "日本語\nテキスト", "日本語\nテキスト"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripControl(tt.in))
		})
	}
}
