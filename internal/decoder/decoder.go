// Package decoder turns raw push messages into structured news events.
package decoder

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/AGO523/node-news-notification/internal/models"
)

var (
	// ErrEncoding indicates the message data was not valid base64.
	ErrEncoding = errors.New("invalid base64 payload")

	// ErrMalformedPayload indicates the decoded bytes were not a JSON object.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Decode decodes a push message payload from base64 and parses it as a JSON
// object. Field presence is not validated here; stages downstream must treat
// missing fields defensively. Decode is pure and performs no I/O.
func Decode(msg models.PushMessage) (*models.NewsEvent, error) {
	raw, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedPayload)
	}

	// Unmarshal alone would accept a bare null (leaving a zero-value event),
	// so the root token is checked first.
	tok, err := json.NewDecoder(bytes.NewReader(raw)).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: payload root is not a JSON object", ErrMalformedPayload)
	}

	var event models.NewsEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return &event, nil
}
