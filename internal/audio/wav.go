// Package audio holds the small amount of container handling the service
// needs for raw PCM16LE mono audio.
package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const (
	numChannels   = 1
	bitsPerSample = 16
	formatPCM     = 1
	wavHeaderSize = 44
)

var ErrNotWAV = errors.New("audio: not a PCM16 WAV stream")

// EncodeWAV wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	if err := WriteWAV(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAV writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 24000
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(formatPCM),
		uint16(numChannels),
		uint32(sampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// DecodeWAV returns the PCM payload and sample rate of a canonical
// 44-byte-header PCM16 mono WAV.
func DecodeWAV(wav []byte) ([]byte, int, error) {
	if len(wav) < wavHeaderSize ||
		string(wav[0:4]) != "RIFF" ||
		string(wav[8:12]) != "WAVE" ||
		string(wav[36:40]) != "data" {
		return nil, 0, ErrNotWAV
	}
	if binary.LittleEndian.Uint16(wav[20:22]) != formatPCM ||
		binary.LittleEndian.Uint16(wav[34:36]) != bitsPerSample {
		return nil, 0, ErrNotWAV
	}
	rate := int(binary.LittleEndian.Uint32(wav[24:28]))
	size := int(binary.LittleEndian.Uint32(wav[40:44]))
	if size > len(wav)-wavHeaderSize {
		size = len(wav) - wavHeaderSize
	}
	return wav[wavHeaderSize : wavHeaderSize+size], rate, nil
}

// PCMDuration is the play time of n bytes of PCM16 mono at sampleRate.
func PCMDuration(n, sampleRate int) time.Duration {
	if n <= 0 || sampleRate <= 0 {
		return 0
	}
	samples := n / (bitsPerSample / 8)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
