package cmd

// runCalibration implements --run_calibration: computes calibration TMDs
// for every reference pair not already present in the persisted
// calibration table (spec §4.5).
func runCalibration(b *engineBundle) error {
	return b.engine.CalculateCalibrationTMDs(b.cache, b.table)
}
