package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodingPCM(t *testing.T) {
	enc := EncodingPCM{
		PCMFormat:  PCMFormatS16LE,
		SampleRate: 16000,
	}
	require.Equal(t, uint(2), enc.BytesPerSample())
	require.Equal(t, uint64(320), enc.SamplesForDuration(20*time.Millisecond))
	require.Equal(t, uint64(640), enc.BytesForDuration(20*time.Millisecond))
	require.Equal(t, "s16le", PCMFormatS16LE.String())
	require.Equal(t, uint(0), EndOfPCMFormat.Size())
}
