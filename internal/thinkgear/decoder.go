package thinkgear

import (
	"encoding/binary"
	"io"
	"log/slog"
)

const (
	syncByte = 0xAA

	// Payload codes below extendedCodeMin carry a single value byte.
	codePoorSignal = 0x02
	codeAttention  = 0x04
	codeMeditation = 0x05

	// Codes at or above extendedCodeMin are followed by an explicit
	// value-length byte.
	extendedCodeMin = 0x80
	codeRawEEG      = 0x80
	codeBandPowers  = 0x83

	rawEEGValueLen     = 2
	bandPowersValueLen = 24

	// DefaultMaxBuffer bounds the undecoded tail kept between Feed calls.
	// A frame is at most 2+1+255+1 bytes, so anything beyond that is
	// unresolvable garbage.
	DefaultMaxBuffer = 512
)

// Stats carries decoder counters for observability.
type Stats struct {
	PacketsDecoded   uint64
	ChecksumFailures uint64
	BytesDiscarded   uint64
}

// WithLogger sets the logger for the decoder.
func WithLogger(logger *slog.Logger) func(*Decoder) {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithMaxBuffer sets the maximum number of undecoded bytes retained between
// Feed calls. Values below the maximum frame size are ignored.
func WithMaxBuffer(n int) func(*Decoder) {
	return func(d *Decoder) {
		if n >= 259 {
			d.maxBuffer = n
		}
	}
}

// Decoder is an incremental parser for the headset serial protocol. Bytes
// arrive in arbitrary chunks; Feed extracts every complete, checksum-valid
// frame and keeps any trailing partial frame for the next call.
//
// A Decoder holds per-connection state and is not safe for concurrent use.
// Chunks must be fed in the order they were received.
type Decoder struct {
	buf       []byte
	stats     Stats
	maxBuffer int
	logger    *slog.Logger
}

// NewDecoder creates a Decoder with a discard logger.
func NewDecoder(options ...func(*Decoder)) *Decoder {
	d := Decoder{
		maxBuffer: DefaultMaxBuffer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Feed appends chunk to the internal buffer and returns every packet that can
// be decoded from it. Corrupted frames are dropped silently: a checksum
// mismatch advances the scan by a single byte so that a corrupted length byte
// cannot swallow a following valid frame.
func (d *Decoder) Feed(chunk []byte) []SensorPacket {
	d.buf = append(d.buf, chunk...)

	var packets []SensorPacket
	i := 0

	for {
		// Scan for two consecutive sync bytes. A lone sync byte followed
		// by anything else is a stray and is skipped.
		start := i
		for i+1 < len(d.buf) && (d.buf[i] != syncByte || d.buf[i+1] != syncByte) {
			i++
		}
		d.stats.BytesDiscarded += uint64(i - start)

		if i+1 >= len(d.buf) {
			break // no sync pair resolvable yet
		}
		if i+2 >= len(d.buf) {
			break // sync pair found, length byte not buffered yet
		}

		payloadLen := int(d.buf[i+2])
		frameEnd := i + 3 + payloadLen + 1
		if frameEnd > len(d.buf) {
			break // incomplete frame, wait for more bytes
		}

		payload := d.buf[i+3 : i+3+payloadLen]

		var sum byte
		for _, b := range payload {
			sum += b
		}
		if 0xFF-sum != d.buf[frameEnd-1] {
			// Resume the sync search one byte further along: the length
			// byte itself may be the corrupted one.
			d.stats.ChecksumFailures++
			d.stats.BytesDiscarded++
			i++
			continue
		}

		if pkt, ok := decodePayload(payload); ok {
			packets = append(packets, pkt)
			d.stats.PacketsDecoded++
		}
		i = frameEnd
	}

	d.buf = append(d.buf[:0], d.buf[i:]...)

	// Liveness guard against a stream that never yields a resolvable frame.
	if len(d.buf) > d.maxBuffer {
		drop := len(d.buf) - d.maxBuffer
		d.stats.BytesDiscarded += uint64(drop)
		d.buf = append(d.buf[:0], d.buf[drop:]...)
		d.logger.Warn("decode buffer overflow, truncating", slog.Int("dropped", drop))
	}

	return packets
}

// Reset clears all buffered bytes and counters. Used on disconnect.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.stats = Stats{}
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// decodePayload scans a validated frame payload left to right. It reports
// false when no recognized field was present. A declared length running past
// the end of the payload ends the scan; fields decoded so far stay valid.
func decodePayload(payload []byte) (SensorPacket, bool) {
	var pkt SensorPacket
	var found bool

	i := 0
	for i < len(payload) {
		code := payload[i]
		i++

		if code < extendedCodeMin {
			if i >= len(payload) {
				return pkt, found // truncated value
			}
			v := payload[i]
			i++

			switch code {
			case codePoorSignal:
				pkt.PoorSignal = &v
				found = true
			case codeAttention:
				pkt.Attention = &v
				found = true
			case codeMeditation:
				pkt.Meditation = &v
				found = true
			default:
				// Unknown single-byte code: value byte already skipped.
			}
			continue
		}

		if i >= len(payload) {
			return pkt, found // truncated length byte
		}
		valueLen := int(payload[i])
		i++
		if i+valueLen > len(payload) {
			return pkt, found // declared length runs past the payload
		}
		value := payload[i : i+valueLen]
		i += valueLen

		switch {
		case code == codeRawEEG && valueLen == rawEEGValueLen:
			v := int16(binary.BigEndian.Uint16(value))
			pkt.RawEEG = &v
			found = true

		case code == codeBandPowers && valueLen == bandPowersValueLen:
			var powers [NumBands]uint32
			for b := 0; b < NumBands; b++ {
				off := b * 3
				powers[b] = uint32(value[off])<<16 | uint32(value[off+1])<<8 | uint32(value[off+2])
			}
			pkt.BandPowers = &powers
			found = true

		default:
			// Unknown extended code: skip its value for forward compatibility.
		}
	}

	return pkt, found
}
