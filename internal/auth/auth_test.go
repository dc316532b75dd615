package auth_test

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"blossom/internal/auth"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func signedEvent(t *testing.T, sk string, kind int, tags nostr.Tags) *nostr.Event {
	t.Helper()

	evt := &nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Now(),
		Content:   "auth event",
		Tags:      tags,
	}
	require.NoError(t, evt.Sign(sk), "signing auth event")
	return evt
}

func expiration(delta int64) string {
	return fmt.Sprintf("%d", int64(nostr.Now())+delta)
}

func TestValidate_ValidUploadEvent(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	evt := signedEvent(t, sk, auth.EventKind, nostr.Tags{
		{"t", "upload"},
		{"size", "36194"},
		{"expiration", expiration(1000)},
	})

	pubkey, err := auth.Validate(evt, auth.ActionUpload, 36194, "")
	require.NoError(t, err)
	require.Equal(t, pk, pubkey, "verified identity")
}

func TestValidate_RejectionMatrix(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()

	tests := []struct {
		name    string
		kind    int
		tags    nostr.Tags
		action  auth.Action
		size    int64
		target  string
		wantErr error
	}{
		{
			name:    "different kind fails",
			kind:    69420,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36194"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrWrongEventKind,
		},
		{
			name:    "different action fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "get"}, {"size", "36194"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrActionMismatch,
		},
		{
			name:    "unknown action fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "destroy"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrActionInvalid,
		},
		{
			name:    "missing action tag fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"size", "36194"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrActionTagMissing,
		},
		{
			name:    "different size fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36193"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrSizeMismatch,
		},
		{
			name:    "missing size tag fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrSizeTagMissing,
		},
		{
			name:    "unparseable size fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "lots"}, {"expiration", expiration(1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrSizeInvalid,
		},
		{
			name:    "expiration in the past fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36194"}, {"expiration", expiration(-1000)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrExpired,
		},
		{
			name:    "expiration exactly now fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36194"}, {"expiration", expiration(0)}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrExpired,
		},
		{
			name:    "missing expiration tag fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36194"}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrExpirationMissing,
		},
		{
			name:    "unparseable expiration fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36194"}, {"expiration", "tomorrow"}},
			action:  auth.ActionUpload,
			size:    36194,
			wantErr: auth.ErrExpirationInvalid,
		},
		{
			name:    "upload token presented for delete fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "upload"}, {"size", "36194"}, {"expiration", expiration(1000)}},
			action:  auth.ActionDelete,
			target:  "abc123",
			wantErr: auth.ErrActionMismatch,
		},
		{
			name:    "delete without x tag fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "delete"}, {"expiration", expiration(1000)}},
			action:  auth.ActionDelete,
			target:  "abc123",
			wantErr: auth.ErrTargetTagMissing,
		},
		{
			name:    "delete with wrong x tag fails",
			kind:    auth.EventKind,
			tags:    nostr.Tags{{"t", "delete"}, {"x", "def456"}, {"expiration", expiration(1000)}},
			action:  auth.ActionDelete,
			target:  "abc123",
			wantErr: auth.ErrTargetHashMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			evt := signedEvent(t, sk, tc.kind, tc.tags)

			_, err := auth.Validate(evt, tc.action, tc.size, tc.target)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidate_ValidDeleteEvent(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	evt := signedEvent(t, sk, auth.EventKind, nostr.Tags{
		{"t", "delete"},
		{"x", "abc123"},
		{"expiration", expiration(1000)},
	})

	_, err := auth.Validate(evt, auth.ActionDelete, 0, "abc123")
	require.NoError(t, err)
}

func TestValidate_TamperedEventFails(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	evt := signedEvent(t, sk, auth.EventKind, nostr.Tags{
		{"t", "upload"},
		{"size", "100"},
		{"expiration", expiration(1000)},
	})

	// Growing the authorized size after signing must invalidate the event.
	evt.Tags = nostr.Tags{
		{"t", "upload"},
		{"size", "200"},
		{"expiration", expiration(1000)},
	}

	_, err := auth.Validate(evt, auth.ActionUpload, 200, "")
	require.ErrorIs(t, err, auth.ErrEventSignature)
}

func TestValidate_CreatedAtInFutureFails(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	evt := &nostr.Event{
		Kind:      auth.EventKind,
		CreatedAt: nostr.Now() + 600,
		Content:   "auth event",
		Tags: nostr.Tags{
			{"t", "upload"},
			{"size", "100"},
			{"expiration", expiration(1000)},
		},
	}
	require.NoError(t, evt.Sign(sk))

	_, err := auth.Validate(evt, auth.ActionUpload, 100, "")
	require.ErrorIs(t, err, auth.ErrCreatedInFuture)
}

func TestParseAuthorization(t *testing.T) {
	t.Parallel()

	sk := nostr.GeneratePrivateKey()
	evt := signedEvent(t, sk, auth.EventKind, nostr.Tags{
		{"t", "get"},
		{"expiration", expiration(1000)},
	})

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	header := "Nostr " + base64.StdEncoding.EncodeToString(raw)

	parsed, err := auth.ParseAuthorization(header)
	require.NoError(t, err)
	require.Equal(t, evt.PubKey, parsed.PubKey)
	require.Equal(t, evt.Sig, parsed.Sig)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{name: "empty header", header: "", wantErr: auth.ErrMissingAuthHeader},
		{name: "wrong scheme", header: "Bearer abc", wantErr: auth.ErrInvalidAuthHeader},
		{name: "bad base64", header: "Nostr %%%", wantErr: auth.ErrEventBase64},
		{name: "bad json", header: "Nostr " + base64.StdEncoding.EncodeToString([]byte("not json")), wantErr: auth.ErrEventJSON},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := auth.ParseAuthorization(tc.header)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}
