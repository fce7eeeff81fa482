package entry

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// EncodingVersion tags the at-rest transform applied to sensitive fields.
// Stored payloads are CBOR-serialized and base64-encoded. The transform is
// content opacity, not confidentiality; swapping in authenticated
// encryption only requires the round-trip contract to hold.
const EncodingVersion = "cbor64/v1"

// encodedPrefix marks an encoded sensitive field so decoding stays
// idempotent and unknown payloads pass through untouched.
const encodedPrefix = EncodingVersion + ":"

// ErrDecode is returned when an encoded payload cannot be reversed.
var ErrDecode = errors.New("sensitive field decode failed")

// Record is the at-rest shape of a secure entry. Notes holds the encoded
// form of the caller's notes, and VerificationData the encoded form of the
// verification outcome (empty when absent). The audit trail stays in the
// clear so it remains appendable and reviewable in storage.
type Record struct {
	Entry
	VerificationData string           `json:"verification_data,omitempty"`
	Security         SecurityMetadata `json:"security_metadata"`
}

// Seal converts a decoded secure entry into its at-rest record, encoding
// the sensitive fields.
func Seal(e SecureEntry) (Record, error) {
	record := Record{Entry: e.Entry, Security: e.Security}
	record.Security.EncodingVersion = EncodingVersion

	if e.Notes != "" {
		encoded, err := encodeValue(e.Notes)
		if err != nil {
			return Record{}, fmt.Errorf("encode notes: %w", err)
		}
		record.Notes = encoded
	}

	if e.VerificationData != nil {
		encoded, err := encodeValue(*e.VerificationData)
		if err != nil {
			return Record{}, fmt.Errorf("encode verification data: %w", err)
		}
		record.VerificationData = encoded
	}

	return record, nil
}

// Open converts an at-rest record back into its decoded secure entry.
// Fields that do not carry the known encoding prefix pass through
// untouched, so records written before the transform existed stay
// readable.
func Open(record Record) (SecureEntry, error) {
	e := SecureEntry{Entry: record.Entry, Security: record.Security}

	if strings.HasPrefix(record.Notes, encodedPrefix) {
		var notes string
		if err := decodeValue(record.Notes, &notes); err != nil {
			return SecureEntry{}, fmt.Errorf("decode notes: %w", err)
		}
		e.Notes = notes
	}

	if record.VerificationData != "" {
		if strings.HasPrefix(record.VerificationData, encodedPrefix) {
			var data VerificationData
			if err := decodeValue(record.VerificationData, &data); err != nil {
				return SecureEntry{}, fmt.Errorf("decode verification data: %w", err)
			}
			e.VerificationData = &data
		}
	}

	return e, nil
}

// encodeValue serializes v with CBOR and wraps it in base64 under the
// version prefix.
func encodeValue(v any) (string, error) {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return "", err
	}
	return encodedPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// decodeValue reverses encodeValue into out.
func decodeValue(encoded string, out any) error {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, encodedPrefix))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := cbor.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
