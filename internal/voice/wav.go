package voice

import (
	"bytes"
	"encoding/binary"
)

// TargetSampleRate is the fixed rate the transcription service expects:
// 16 kHz mono 16-bit linear PCM.
const TargetSampleRate = 16000

// Downsample converts a capture to mono at TargetSampleRate. Interleaved
// channels are averaged first, then the mono stream is resampled linearly.
func Downsample(c Capture) []int16 {
	if len(c.Samples) == 0 || c.SampleRate <= 0 {
		return nil
	}
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}

	frames := len(c.Samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(c.Samples[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}

	if c.SampleRate == TargetSampleRate {
		return mono
	}

	outFrames := int(int64(frames) * TargetSampleRate / int64(c.SampleRate))
	if outFrames == 0 {
		return nil
	}
	out := make([]int16, outFrames)
	for i := range out {
		pos := float64(i) * float64(frames-1) / float64(maxInt(outFrames-1, 1))
		lo := int(pos)
		hi := lo + 1
		if hi >= frames {
			out[i] = mono[frames-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = int16(float64(mono[lo])*(1-frac) + float64(mono[hi])*frac)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// EncodeWAV wraps mono 16-bit PCM samples in a standard RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
		headerSize    = 44
	)
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
