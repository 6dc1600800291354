package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// channels treats an unset channel count as mono.
func (e EncodingInfo) channels() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case encodingFormat("alaw"):
		return 0x55
	case encodingFormat("mulaw"):
		return 0xFF
	case encodingFormat("linear16"):
		return 0
	}

	return 0
}

// BytesPerSecond returns the byte rate of the stream, or 0 for unknown
// formats.
func (e EncodingInfo) BytesPerSecond() int {
	width := e.Format.ByteSize()
	if width <= 0 || e.SampleRate <= 0 {
		return 0
	}
	return e.SampleRate * e.channels() * width
}

// BytesPerFrame returns the size of one frame of the given duration, rounded
// down to a whole number of samples across all channels.
func (e EncodingInfo) BytesPerFrame(frame time.Duration) int {
	perSecond := e.BytesPerSecond()
	if perSecond == 0 || frame <= 0 {
		return 0
	}

	sampleBytes := e.channels() * e.Format.ByteSize()
	n := int(int64(perSecond) * int64(frame) / int64(time.Second))
	return n - n%sampleBytes
}

// Duration returns how long n bytes of audio play for.
func (e EncodingInfo) Duration(n int) time.Duration {
	perSecond := e.BytesPerSecond()
	if perSecond == 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(perSecond))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

// ParseFormat maps a configured format name onto a known encoding.
func ParseFormat(name string) (encodingFormat, bool) {
	switch f := encodingFormat(name); f {
	case EncodingLinear16, EncodingMulaw, EncodingALaw:
		return f, true
	}
	return "", false
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
