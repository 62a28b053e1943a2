package checkpoint

import (
	"strings"

	"restframe/internal/autoenc"
)

// legacyMLPPattern is the nested module path used by an old key naming
// convention; such keys are rewritten to the current flat convention.
const legacyMLPPattern = "mlp.mlp"

// Migrate rewrites a weight snapshot to the current schema: legacy nested
// key names are flattened, and instrument-derived buffers absent from old
// snapshots are injected from the model's current instrument. The input map
// is not modified.
func Migrate(snapshot map[string][]float64, m *autoenc.Model) map[string][]float64 {
	out := make(map[string][]float64, len(snapshot)+2)
	for key, values := range snapshot {
		if strings.Contains(key, legacyMLPPattern) {
			key = strings.ReplaceAll(key, legacyMLPPattern, "mlp")
		}
		out[key] = values
	}
	if _, ok := out[autoenc.KeyWaveObs]; !ok {
		out[autoenc.KeyWaveObs] = append([]float64(nil), m.Instrument.ObsWave()...)
	}
	if _, ok := out[autoenc.KeySkylineMask]; !ok {
		mask := m.Instrument.SkylineMask()
		values := make([]float64, len(m.Instrument.ObsWave()))
		for i := range values {
			if mask != nil && mask[i] {
				values[i] = 1
			}
		}
		out[autoenc.KeySkylineMask] = values
	}
	return out
}
