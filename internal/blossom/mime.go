package blossom

import (
	"net/http"
	"strings"
)

// detectMime classifies content by sniffing its leading bytes, falling back
// to application/octet-stream when no signature matches. Parameters such as
// charset are stripped so allow-list membership is an exact match on the
// media type.
func detectMime(data []byte) string {
	mt := http.DetectContentType(data)
	if idx := strings.IndexByte(mt, ';'); idx != -1 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}

// typeAllowed reports whether mimeType may be stored. An empty allow-list
// permits all types; a non-empty list requires exact membership.
func typeAllowed(mimeType string, allow map[string]struct{}) bool {
	if len(allow) == 0 {
		return true
	}
	_, ok := allow[mimeType]
	return ok
}

// pubkeyAllowed reports whether the verified identity may mutate the store,
// with the same empty-means-unrestricted convention as typeAllowed.
func pubkeyAllowed(pubkey string, allow map[string]struct{}) bool {
	if len(allow) == 0 {
		return true
	}
	_, ok := allow[pubkey]
	return ok
}
