// ABOUTME: capture_sink contract and a reference PCM source for tests/demos
// ABOUTME: Modeled on pkg/sendspin/source.go's AudioSource/TestToneSource
package capture

import (
	"math"
	"sync"
	"time"

	"github.com/audio-share/audio-share-go/internal/audioformat"
	"github.com/audio-share/audio-share-go/internal/broadcast"
)

// Sink is the external collaborator §1 calls "capture_sink": whatever
// consumes captured PCM chunks. The platform loopback recorder (out of
// scope here) invokes BroadcastAudioData on a Sink whenever a chunk is
// ready; the control-plane server is the concrete Sink this repo wires
// the recorder to.
type Sink = broadcast.Broadcaster

// Source produces a continuous stream of PCM chunks for local testing and
// for the CLI's built-in test-tone fallback. It is not part of the core
// (the core only consumes a Sink) but stands in for the platform loopback
// recorder that spec.md §1 places out of scope.
type Source interface {
	// Run streams chunks to sink until Stop is called or an error occurs.
	Run(sink Sink) error
	// Stop halts streaming started by Run.
	Stop()
	// Format returns the format this source captures at.
	Format() audioformat.Format
}

// TestTone generates a 440Hz sine wave PCM stream at a fixed format,
// chunked every 20ms, matching the teacher's TestToneSource cadence.
type TestTone struct {
	format audioformat.Format

	mu       sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTestTone creates a test-tone source at the given format.
func NewTestTone(format audioformat.Format) *TestTone {
	return &TestTone{
		format:   format,
		stopChan: make(chan struct{}),
	}
}

// Format returns the configured format.
func (s *TestTone) Format() audioformat.Format {
	return s.format
}

// Stop halts a running Run call.
func (s *TestTone) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

const toneChunkMillis = 20

// Run streams sine-wave PCM chunks to sink every 20ms until Stop is
// called. Chunk length follows the configured block align, but samples
// are always written as 16-bit little-endian, two bytes per channel,
// whatever the configured encoding: only pcm_s16_le is implemented,
// since it's sufficient for local testing and for exercising the full
// broadcast path end to end.
func (s *TestTone) Run(sink Sink) error {
	const frequency = 440.0
	samplesPerChunk := s.format.SampleRate * toneChunkMillis / 1000
	blockAlign := s.format.BlockAlign()

	var sampleIndex uint64
	ticker := time.NewTicker(toneChunkMillis * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return nil
		case <-ticker.C:
			chunk := make([]byte, samplesPerChunk*blockAlign)
			for i := 0; i < samplesPerChunk; i++ {
				t := float64(sampleIndex+uint64(i)) / float64(s.format.SampleRate)
				sample := math.Sin(2 * math.Pi * frequency * t)
				pcm := int16(sample * 0.5 * math.MaxInt16)

				for ch := 0; ch < s.format.Channels; ch++ {
					off := (i*s.format.Channels + ch) * 2
					chunk[off] = byte(pcm)
					chunk[off+1] = byte(pcm >> 8)
				}
			}
			sampleIndex += uint64(samplesPerChunk)
			sink.BroadcastAudioData(chunk, blockAlign)
		}
	}
}
