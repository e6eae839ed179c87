package analyzer

// UncalibratedTMD implements spec §4.4: builds bounded-bin signatures for
// D1 and D2 over boundsPerDim/numBins, then returns their earth-mover
// distance. Symmetric and non-negative by construction; zero when D1 and
// D2 are identical distributions (EMD of a signature against itself).
func UncalibratedTMD(d1, d2 [][]int64, boundsPerDim []Bound, numBins int) (float64, error) {
	sig1, err := BuildSignature(d1, boundsPerDim, numBins)
	if err != nil {
		return 0, err
	}
	sig2, err := BuildSignature(d2, boundsPerDim, numBins)
	if err != nil {
		return 0, err
	}
	return EMD(sig1, sig2), nil
}
