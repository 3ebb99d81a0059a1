package media

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ParseDataURI splits a data:<mime>;base64,<payload> string into its
// MIME type and decoded payload.
func ParseDataURI(uri string) (mimeType string, data []byte, err error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data uri")
	}
	rest := strings.TrimPrefix(uri, "data:")
	sep := strings.Index(rest, ",")
	if sep < 0 {
		return "", nil, fmt.Errorf("data uri has no payload separator")
	}
	meta, payload := rest[:sep], rest[sep+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data uri is not base64 encoded")
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	if mimeType == "" {
		return "", nil, fmt.Errorf("data uri has no mime type")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data uri payload: %w", err)
	}
	return mimeType, data, nil
}

// EncodeDataURI builds a base64 data URI from raw bytes.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
