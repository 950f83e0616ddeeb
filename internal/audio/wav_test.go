package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	wav, err := EncodeWAV(pcm, 16000)
	require.NoError(t, err)
	require.Len(t, wav, wavHeaderSize+len(pcm))
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))

	got, rate, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, pcm, got)
}

func TestDecodeWAVRejectsOtherContainers(t *testing.T) {
	_, _, err := DecodeWAV([]byte("ID3\x04 not a wav"))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestPCMDuration(t *testing.T) {
	assert.Equal(t, time.Second, PCMDuration(48000, 24000))
	assert.Zero(t, PCMDuration(10, 0))
}
