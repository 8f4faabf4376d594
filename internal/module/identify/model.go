package identify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/floralens/server/internal/port/outbound"
)

// Request is one identification request.
type Request struct {
	// Image is the raw photo content.
	Image []byte

	// Params are the caller-supplied identification hints.
	Params outbound.IdentifyParams
}

// Fingerprint returns the stable cache/lock key material for this request.
// Identical image bytes plus identical (normalized) parameters must always
// produce the same fingerprint, or stampede collapsing stops working.
func (r *Request) Fingerprint() string {
	h := sha256.New()
	h.Write(r.Image)

	organs := make([]string, len(r.Params.Organs))
	copy(organs, r.Params.Organs)
	sort.Strings(organs)
	h.Write([]byte(strings.Join(organs, ",")))

	if r.Params.Latitude != nil && r.Params.Longitude != nil {
		// Two decimal places (~1km); nearby shots of the same photo dedupe.
		fmt.Fprintf(h, "@%.2f,%.2f", *r.Params.Latitude, *r.Params.Longitude)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Suggestion is one candidate species in a result.
type Suggestion struct {
	PlantName      string  `json:"plant_name"`
	ScientificName string  `json:"scientific_name"`
	Probability    float64 `json:"probability"`
}

// Result is the identification outcome returned to callers.
type Result struct {
	Success        bool         `json:"success"`
	PlantName      string       `json:"plant_name"`
	ScientificName string       `json:"scientific_name"`
	Confidence     float64      `json:"confidence"`
	Suggestions    []Suggestion `json:"suggestions"`
	Provider       string       `json:"provider"`
	Cached         bool         `json:"cached"`
}

// resultFromRaw converts the provider-neutral upstream response into a Result.
// The top suggestion becomes the headline identification.
func resultFromRaw(raw *outbound.RawIdentification) *Result {
	res := &Result{
		Success:  true,
		Provider: raw.Provider,
	}

	for _, s := range raw.Suggestions {
		res.Suggestions = append(res.Suggestions, Suggestion{
			PlantName:      s.PlantName,
			ScientificName: s.ScientificName,
			Probability:    s.Probability,
		})
	}

	if len(res.Suggestions) > 0 {
		top := res.Suggestions[0]
		res.PlantName = top.PlantName
		res.ScientificName = top.ScientificName
		res.Confidence = top.Probability
	}

	return res
}
