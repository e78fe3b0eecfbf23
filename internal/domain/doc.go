// Package domain models wildfire-risk sensor readings and the pure functions that
// produce them.
//
// # Telemetry Format
//
// Field devices (an Arduino on a serial port in the reference setup) print one line per
// sample with labeled numeric tokens:
//
//	"T:25.4 H:60 W:3.2 SM:120 DRY:0.7"
//
//	T    temperature, °C        (required)
//	H    relative humidity, %
//	W    wind speed, m/s
//	SM   smoke, ppm
//	DRY  fuel dryness, 0–1
//
// Tokens may appear in any order and may be mixed with arbitrary text ("boot ok T:30 #12").
// Values are unsigned decimals; a line without a T token is not a reading. Missing
// optional tokens leave the measurement nil rather than zero.
//
// # Risk Model
//
// A fixed logistic scorer, not a trained one:
//
//	z     = w_temp*T + w_hum*H + w_wind*W + w_dry*DRY + w_smoke*SM + bias
//	score = 1 / (1 + e^-z)
//
// Default weights are 0.12, -0.06, 0.18, 1.20, 0.22 and bias -3.0. Missing measurements
// enter the sum as zero, which lowers or raises the score of partial readings; the
// documented example values depend on this. Labels: score >= 0.66 High, >= 0.33 Medium,
// otherwise Low. Weights are supplied per request for what-if exploration; thresholds are
// process configuration.
//
// # Positions
//
// A sensor's position is, in order of precedence: an operator override, the position
// already stored with the reading, or a synthetic point derived from the MD5 digest of the
// sensor ID within ±0.09° of the map center. The derived point is stable across runs
// without any persisted state. See [ResolvePosition].
//
// # Reading Tables
//
// Tables are keyed by (sensor_id, timestamp) with the timestamp formatted at second
// precision ([TimestampLayout]). [MergeReadings] keeps the last row per key, which makes
// re-ingesting a batch idempotent.
package domain
