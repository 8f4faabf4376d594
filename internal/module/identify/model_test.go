package identify

import (
	"testing"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestRequest_Fingerprint(t *testing.T) {
	base := &Request{
		Image:  []byte("image-bytes"),
		Params: outbound.IdentifyParams{Organs: []string{"leaf", "flower"}},
	}

	t.Run("Stable across calls", func(t *testing.T) {
		assert.Equal(t, base.Fingerprint(), base.Fingerprint())
	})

	t.Run("Organ order does not matter", func(t *testing.T) {
		reordered := &Request{
			Image:  []byte("image-bytes"),
			Params: outbound.IdentifyParams{Organs: []string{"flower", "leaf"}},
		}
		assert.Equal(t, base.Fingerprint(), reordered.Fingerprint())
	})

	t.Run("Different image differs", func(t *testing.T) {
		other := &Request{
			Image:  []byte("other-image-bytes"),
			Params: outbound.IdentifyParams{Organs: []string{"leaf", "flower"}},
		}
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("Different organs differ", func(t *testing.T) {
		other := &Request{
			Image:  []byte("image-bytes"),
			Params: outbound.IdentifyParams{Organs: []string{"bark"}},
		}
		assert.NotEqual(t, base.Fingerprint(), other.Fingerprint())
	})

	t.Run("Coordinates rounded to two decimals", func(t *testing.T) {
		a := &Request{
			Image:  []byte("image-bytes"),
			Params: outbound.IdentifyParams{Latitude: floatPtr(48.8566), Longitude: floatPtr(2.3522)},
		}
		b := &Request{
			Image:  []byte("image-bytes"),
			Params: outbound.IdentifyParams{Latitude: floatPtr(48.8601), Longitude: floatPtr(2.3488)},
		}
		far := &Request{
			Image:  []byte("image-bytes"),
			Params: outbound.IdentifyParams{Latitude: floatPtr(52.52), Longitude: floatPtr(13.40)},
		}
		assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "nearby coordinates share a fingerprint")
		assert.NotEqual(t, a.Fingerprint(), far.Fingerprint())
	})

	t.Run("Missing coordinates ignored", func(t *testing.T) {
		partial := &Request{
			Image:  []byte("image-bytes"),
			Params: outbound.IdentifyParams{Organs: []string{"leaf", "flower"}, Latitude: floatPtr(48.85)},
		}
		assert.Equal(t, base.Fingerprint(), partial.Fingerprint(), "latitude without longitude is dropped")
	})
}

func TestResultFromRaw(t *testing.T) {
	t.Run("Top suggestion becomes headline", func(t *testing.T) {
		res := resultFromRaw(&outbound.RawIdentification{
			Provider: "plantnet",
			Suggestions: []outbound.RawSuggestion{
				{PlantName: "Common daisy", ScientificName: "Bellis perennis", Probability: 0.74},
				{PlantName: "Oxeye daisy", ScientificName: "Leucanthemum vulgare", Probability: 0.21},
			},
		})

		assert.True(t, res.Success)
		assert.Equal(t, "plantnet", res.Provider)
		assert.Equal(t, "Common daisy", res.PlantName)
		assert.Equal(t, "Bellis perennis", res.ScientificName)
		assert.InDelta(t, 0.74, res.Confidence, 0.001)
		assert.Len(t, res.Suggestions, 2)
		assert.False(t, res.Cached)
	})

	t.Run("No suggestions yields empty headline", func(t *testing.T) {
		res := resultFromRaw(&outbound.RawIdentification{Provider: "plantid"})
		assert.True(t, res.Success)
		assert.Empty(t, res.PlantName)
		assert.Zero(t, res.Confidence)
	})
}
