package autoenc

import (
	"errors"
	"fmt"
)

// Checkpoint key convention for model snapshots. Buffers are derived from
// the instrument and the restframe grid but are persisted alongside weights
// so snapshots stand on their own.
const (
	KeyEncoderWeight = "encoder.mlp.weight"
	KeyEncoderBias   = "encoder.mlp.bias"
	KeyDecoderWeight = "decoder.mlp.weight"
	KeyDecoderBias   = "decoder.mlp.bias"
	KeyWaveRest      = "decoder.wave_rest"
	KeyWaveObs       = "encoder.instrument.wave_obs"
	KeySkylineMask   = "encoder.instrument.skyline_mask"
	KeyCalibration   = "encoder.instrument.calibration"
)

// ErrMissingBuffer reports a snapshot lacking an instrument-derived buffer.
var ErrMissingBuffer = errors.New("autoenc: snapshot missing instrument buffer")

// BufferKeys lists the instrument-derived buffers every snapshot must carry.
func BufferKeys() []string {
	return []string{KeyWaveObs, KeySkylineMask}
}

// State captures the model's tensors under the checkpoint key convention.
func (m *Model) State() map[string][]float64 {
	state := map[string][]float64{
		KeyEncoderWeight: append([]float64(nil), m.Encoder.Weight.Value...),
		KeyEncoderBias:   append([]float64(nil), m.Encoder.Bias.Value...),
		KeyDecoderWeight: append([]float64(nil), m.Decoder.Weight.Value...),
		KeyDecoderBias:   append([]float64(nil), m.Decoder.Bias.Value...),
		KeyWaveRest:      append([]float64(nil), m.Decoder.WaveRest...),
		KeyWaveObs:       append([]float64(nil), m.Instrument.ObsWave()...),
		KeySkylineMask:   maskToFloats(m.Instrument.SkylineMask(), len(m.Instrument.ObsWave())),
	}
	if calib := m.Instrument.Calibration(); calib != nil {
		state[KeyCalibration] = append([]float64(nil), calib.Value...)
	}
	return state
}

// LoadState installs a snapshot into the model. Parameter keys present in
// the snapshot load strictly by length; missing parameter keys keep their
// current values (permissive load); unknown keys are ignored. Instrument
// buffers must be present; callers migrate legacy snapshots first.
func (m *Model) LoadState(state map[string][]float64) error {
	for _, key := range BufferKeys() {
		if _, ok := state[key]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingBuffer, key)
		}
	}
	params := map[string]*Param{
		KeyEncoderWeight: m.Encoder.Weight,
		KeyEncoderBias:   m.Encoder.Bias,
		KeyDecoderWeight: m.Decoder.Weight,
		KeyDecoderBias:   m.Decoder.Bias,
	}
	if calib := m.Instrument.Calibration(); calib != nil {
		params[KeyCalibration] = calib
	}
	for key, param := range params {
		values, ok := state[key]
		if !ok {
			continue
		}
		if len(values) != len(param.Value) {
			return fmt.Errorf("autoenc: snapshot key %s has %d values, model expects %d", key, len(values), len(param.Value))
		}
		copy(param.Value, values)
	}
	return nil
}

func maskToFloats(mask []bool, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if mask != nil && mask[i] {
			out[i] = 1
		}
	}
	return out
}
