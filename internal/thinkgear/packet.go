package thinkgear

// Band identifies one of the eight hardware EEG power bands reported by the
// headset in a single 0x83 payload, in wire order.
type Band int

const (
	BandDelta Band = iota
	BandTheta
	BandAlphaLow
	BandAlphaHigh
	BandBetaLow
	BandBetaHigh
	BandGammaLow
	BandGammaHigh

	// NumBands is the number of bands in a 0x83 value.
	NumBands = 8
)

var bandNames = [NumBands]string{
	"delta", "theta", "alphaLow", "alphaHigh",
	"betaLow", "betaHigh", "gammaLow", "gammaHigh",
}

// bandRanges holds the canonical frequency range of each band in Hz,
// inclusive on both ends.
var bandRanges = [NumBands][2]float64{
	{0.5, 4}, {4, 8}, {8, 10}, {10, 13}, {13, 17}, {17, 30}, {30, 40}, {40, 50},
}

func (b Band) String() string {
	if b < 0 || b >= NumBands {
		return "unknown"
	}
	return bandNames[b]
}

// Range returns the canonical frequency range of the band in Hz.
func (b Band) Range() (low, high float64) {
	return bandRanges[b][0], bandRanges[b][1]
}

// SensorPacket is a single validated frame decoded from the headset stream.
// Fields are nil unless the corresponding code appeared in the frame payload.
type SensorPacket struct {
	PoorSignal *uint8            // 0-200, lower is better, 200 means no skin contact
	Attention  *uint8            // eSense attention index, 0-100
	Meditation *uint8            // eSense meditation index, 0-100
	RawEEG     *int16            // single raw ADC sample
	BandPowers *[NumBands]uint32 // hardware band powers, 24-bit unsigned each
}
