package transcriber

import "context"

const (
	// MinChunkBytes is the floor below which the segmenter skips a chunk
	// entirely: near-silence is not worth quota.
	MinChunkBytes = 5000

	// MinUploadBytes is the hard validation floor at the client boundary.
	MinUploadBytes = 1000
)

// Chunk is one finite unit of audio, produced at an interval boundary and
// consumed by exactly one transcription call.
type Chunk struct {
	Data []byte
	MIME string
	Seq  int
}

// Transcriber turns one audio chunk into a text fragment. Calls are
// independent: no acoustic or language context is shared between chunks.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk Chunk) (string, error)
}
