package claims

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/klauspost/pgzip"

	customErrors "github.com/clarity-dx/bill-review/billreview/errors"
	"github.com/clarity-dx/bill-review/billreview/models"
)

// Decode reads one HCFA document from r and normalizes it. Files named *.gz are
// gunzipped first and a leading byte order mark is ignored.
func Decode(r io.Reader, name string) (models.Claim, error) {
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return models.Claim{}, &customErrors.ClaimFormatError{Err: err, File: name}
		}
		defer gz.Close()
		r = gz
	}

	raw, err := io.ReadAll(utfbom.SkipOnly(r))
	if err != nil {
		return models.Claim{}, &customErrors.ClaimFormatError{Err: err, File: name}
	}
	raw = bytes.TrimSpace(raw)

	var h models.HCFA
	if err := json.Unmarshal(raw, &h); err != nil {
		return models.Claim{}, &customErrors.ClaimFormatError{Err: err, File: name}
	}

	return models.Normalize(h, json.RawMessage(raw)), nil
}

// IsClaimFile reports whether name looks like a claim document.
func IsClaimFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".json.gz")
}
