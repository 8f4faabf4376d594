package outbound

import "context"

// IdentifyParams are the caller-supplied identification parameters.
// They participate in the request fingerprint, so field order and
// normalization matter to cache hit rates.
type IdentifyParams struct {
	// Organs hints which plant parts the photo shows (leaf, flower, fruit, bark).
	Organs []string

	// Latitude/Longitude optionally bias identification to local flora.
	Latitude  *float64
	Longitude *float64
}

// RawSuggestion is one candidate species from the upstream provider.
type RawSuggestion struct {
	PlantName      string  `json:"plant_name"`
	ScientificName string  `json:"scientific_name"`
	Probability    float64 `json:"probability"`
}

// RawIdentification is the provider-neutral upstream response.
type RawIdentification struct {
	Provider    string          `json:"provider"`
	Suggestions []RawSuggestion `json:"suggestions"`
}

// IdentificationProviderPort is the outbound interface to a third-party
// plant identification API.
type IdentificationProviderPort interface {
	// Name returns the provider identifier used in quota/cache/lock keys.
	Name() string

	// Identify submits the image and returns ranked species suggestions.
	Identify(ctx context.Context, image []byte, params IdentifyParams) (*RawIdentification, error)
}
