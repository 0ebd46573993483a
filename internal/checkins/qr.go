package checkins

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/gatherly/backend/pkg/apperr"
)

// QRPayload is the structured content of a registration's check-in QR code.
// The code is an identification artifact, not a secret: every scan is
// re-validated against the registration's live state.
type QRPayload struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	EventID        uuid.UUID `json:"event_id"`
	UserID         uuid.UUID `json:"user_id"`
	IssuedAt       time.Time `json:"issued_at"`
}

// EncodePayload serializes a payload to the string embedded in the QR image.
func EncodePayload(p QRPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodePayload parses a scanned QR string. Malformed input or missing IDs
// fail with a validation error.
func DecodePayload(data string) (*QRPayload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, apperr.Validation("malformed QR code")
	}
	var p QRPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperr.Validation("malformed QR code")
	}
	if p.RegistrationID == uuid.Nil || p.EventID == uuid.Nil || p.UserID == uuid.Nil {
		return nil, apperr.Validation("QR code is missing identifiers")
	}
	return &p, nil
}

// QRImage renders the payload string as a PNG of the given pixel size.
func QRImage(data string, size int) ([]byte, error) {
	return qrcode.Encode(data, qrcode.Medium, size)
}
