package blossom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectMime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "jpeg", data: jpegPayload(64), want: "image/jpeg"},
		{name: "png", data: pngPayload(64), want: "image/png"},
		{name: "pdf", data: []byte("%PDF-1.7 something"), want: "application/pdf"},
		{name: "plain text keeps media type only", data: []byte("hello world"), want: "text/plain"},
		{name: "unrecognized bytes fall back", data: []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFE}, want: "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, detectMime(tc.data))
		})
	}
}

func TestTypeAllowed(t *testing.T) {
	t.Parallel()

	require.True(t, typeAllowed("image/jpeg", nil), "empty allow-list permits everything")
	require.True(t, typeAllowed("application/octet-stream", map[string]struct{}{}), "empty allow-list permits everything")

	allow := map[string]struct{}{"image/png": {}}
	require.True(t, typeAllowed("image/png", allow))
	require.False(t, typeAllowed("image/jpeg", allow))
	require.False(t, typeAllowed("image/png; charset=utf-8", allow), "membership is exact")
}

func TestPubkeyAllowed(t *testing.T) {
	t.Parallel()

	require.True(t, pubkeyAllowed("anyone", nil), "empty allow-list permits everyone")

	allow := map[string]struct{}{"abc": {}}
	require.True(t, pubkeyAllowed("abc", allow))
	require.False(t, pubkeyAllowed("def", allow))
}
