package audio

import (
	"encoding/binary"
	"math"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM encoding used
// on the wire and in WAV containers.
const bitsPerSample = 16

// PCMToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// PCMToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32 by
// averaging all channels per frame. If channels is 1 this is equivalent to
// PCMToFloat32.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return PCMToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// Float32ToPCM converts normalised float32 samples back to 16-bit signed
// little-endian PCM bytes. Samples outside [-1.0, 1.0] are clipped.
func Float32ToPCM(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767.0)
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(v))
	}
	return pcm
}

// EncodeWAV wraps float32 samples in a standard RIFF/WAV container with
// 16-bit signed little-endian PCM encoding. The returned byte slice is
// suitable for direct upload to batch transcription endpoints.
func EncodeWAV(samples []float32, sampleRate, channels int) []byte {
	pcm := Float32ToPCM(samples)

	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// RMS returns the root-mean-square energy of a normalised float32 sample
// buffer. Returns 0 for empty buffers. The result is in the same [0, 1]
// scale as the sample values.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
