// Package auth validates Blossom authorization events.
//
// Every mutating or identity-scoped request carries a signed Nostr event of
// kind 24242 in the Authorization header ("Nostr <base64(json event)>"). The
// event is a single-purpose capability: it names exactly one action, is
// time-boxed by its created_at and expiration tags, and for uploads is bound
// to the exact payload size. Events are validated once per request and never
// stored.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// EventKind is the Nostr event kind reserved for Blossom authorization.
const EventKind = 24242

const headerScheme = "Nostr "

var (
	ErrMissingAuthHeader = errors.New("missing Authorization header")
	ErrInvalidAuthHeader = errors.New("invalid Authorization header")
	ErrEventBase64       = errors.New("invalid auth event: failed base64 decoding")
	ErrEventJSON         = errors.New("invalid auth event: failed json decoding")

	ErrEventSignature     = errors.New("event signature is invalid")
	ErrWrongEventKind     = errors.New("kind must be 24242")
	ErrCreatedInFuture    = errors.New("created_at must be in the past")
	ErrActionTagMissing   = errors.New("t tag must be set")
	ErrActionInvalid      = errors.New("invalid action")
	ErrActionMismatch     = errors.New("action doesn't match")
	ErrExpirationMissing  = errors.New("expiration tag must be set")
	ErrExpirationInvalid  = errors.New("invalid expiration")
	ErrExpired            = errors.New("expiration must be in the future")
	ErrSizeTagMissing     = errors.New("size tag must be set")
	ErrSizeInvalid        = errors.New("invalid size")
	ErrSizeMismatch       = errors.New("size doesn't match")
	ErrTargetTagMissing   = errors.New("x tag must be set")
	ErrTargetHashMismatch = errors.New("x tag doesn't match the requested hash")
)

// ParseAuthorization decodes the Authorization header into a Nostr event.
// Decoding failures are authorization errors, not transport errors: the
// caller maps any of them to an unauthorized response.
func ParseAuthorization(header string) (*nostr.Event, error) {
	if header == "" {
		return nil, ErrMissingAuthHeader
	}
	if !strings.HasPrefix(header, headerScheme) {
		return nil, ErrInvalidAuthHeader
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(headerScheme):]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventBase64, err)
	}

	var evt nostr.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEventJSON, err)
	}

	return &evt, nil
}

// Validate checks that evt is a well-formed authorization event permitting
// action. For uploads, payloadSize must equal the event's size tag exactly.
// For deletes, the event's x tag must name targetHash. On success it returns
// the event's pubkey as the authenticated identity for this request.
//
// Checks run in order and short-circuit on the first failure: signature,
// kind, created_at, action tag, expiration, then the action-specific tags.
func Validate(evt *nostr.Event, action Action, payloadSize int64, targetHash string) (string, error) {
	if ok, err := evt.CheckSignature(); err != nil || !ok {
		return "", ErrEventSignature
	}

	if evt.Kind != EventKind {
		return "", ErrWrongEventKind
	}

	if evt.CreatedAt > nostr.Now() {
		return "", ErrCreatedInFuture
	}

	actionValue, ok := firstTagValue(evt, "t")
	if !ok {
		return "", ErrActionTagMissing
	}
	tagAction, err := ParseAction(actionValue)
	if err != nil {
		return "", err
	}
	if tagAction != action {
		return "", ErrActionMismatch
	}

	expValue, ok := firstTagValue(evt, "expiration")
	if !ok {
		return "", ErrExpirationMissing
	}
	exp, err := strconv.ParseInt(expValue, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrExpirationInvalid, expValue)
	}
	// The boundary is exclusive: an event expiring exactly now is expired.
	if nostr.Timestamp(exp) <= nostr.Now() {
		return "", ErrExpired
	}

	if action == ActionUpload {
		sizeValue, ok := firstTagValue(evt, "size")
		if !ok {
			return "", ErrSizeTagMissing
		}
		size, err := strconv.ParseInt(sizeValue, 10, 64)
		if err != nil || size < 0 {
			return "", fmt.Errorf("%w: %q", ErrSizeInvalid, sizeValue)
		}
		if size != payloadSize {
			return "", ErrSizeMismatch
		}
	}

	if action == ActionDelete {
		target, ok := firstTagValue(evt, "x")
		if !ok {
			return "", ErrTargetTagMissing
		}
		if target != targetHash {
			return "", ErrTargetHashMismatch
		}
	}

	return evt.PubKey, nil
}

// firstTagValue returns the value of the first tag named name. A tag that is
// present but has no value reports ok with an empty string.
func firstTagValue(evt *nostr.Event, name string) (string, bool) {
	for _, tag := range evt.Tags {
		if len(tag) == 0 || tag[0] != name {
			continue
		}
		if len(tag) < 2 {
			return "", true
		}
		return tag[1], true
	}
	return "", false
}
