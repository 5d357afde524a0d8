package session

// RecordingState is the lifecycle of the single recording session.
type RecordingState string

const (
	StateIdle        RecordingState = "idle"
	StateRecording   RecordingState = "recording"
	StateError       RecordingState = "error"
	StateRateLimited RecordingState = "rate-limited"
)

// AnnotationState tracks the annotation side independently of recording:
// annotations are best-effort and never block capture.
type AnnotationState string

const (
	AnnotationIdle        AnnotationState = "idle"
	AnnotationLoading     AnnotationState = "loading"
	AnnotationDone        AnnotationState = "done"
	AnnotationRateLimited AnnotationState = "rate-limited"
	AnnotationError       AnnotationState = "error"
)

// Status is a point-in-time snapshot for the presentation layer.
type Status struct {
	State             RecordingState
	AnnotationState   AnnotationState
	SessionID         string
	ElapsedSeconds    int
	Transcript        string
	LastError         string
	RetryInSeconds    int
	AnnotationRetryIn int
	AnnotationCount   int
}
