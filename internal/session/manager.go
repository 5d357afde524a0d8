package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kotonoha-lab/kikitori/internal/annotator"
	"github.com/kotonoha-lab/kikitori/internal/apperr"
	"github.com/kotonoha-lab/kikitori/internal/audio"
	"github.com/kotonoha-lab/kikitori/internal/config"
	"github.com/kotonoha-lab/kikitori/internal/transcriber"
)

// Manager runs the single recording session: it drives the capture device in
// fixed-interval chunks, fans each chunk out to the transcriber without
// waiting for the previous one, commits fragments in sequence order, and
// dispatches annotation work after every transcript mutation.
type Manager struct {
	cfg       *config.Config
	stt       transcriber.Transcriber
	ann       annotator.Annotator
	newDevice audio.DeviceFactory

	// injectable for tests
	now           func() time.Time
	chunkInterval time.Duration

	mu             sync.Mutex
	state          RecordingState
	annState       AnnotationState
	sessionID      string
	startedAt      time.Time
	lastError      string
	rateLimitUntil time.Time
	annRetryAt     time.Time
	pendingRetry   string
	device         audio.Device
	cancel         context.CancelFunc
	seq            int

	transcript *Accumulator
	merger     *Merger
	annTasks   chan string
}

func NewManager(cfg *config.Config, stt transcriber.Transcriber, ann annotator.Annotator, newDevice audio.DeviceFactory) *Manager {
	m := &Manager{
		cfg:           cfg,
		stt:           stt,
		ann:           ann,
		newDevice:     newDevice,
		now:           time.Now,
		chunkInterval: cfg.ChunkInterval(),
		state:         StateIdle,
		annState:      AnnotationIdle,
		transcript:    NewAccumulator(),
		merger:        NewMerger(),
		annTasks:      make(chan string, 1),
	}
	// The worker outlives sessions on purpose: annotation calls dispatched
	// before a stop may still resolve and merge afterward.
	go m.annotationWorker()
	return m
}

// Start acquires the capture device and begins the chunk loop.
func (m *Manager) Start() error {
	m.mu.Lock()
	switch m.state {
	case StateRecording:
		m.mu.Unlock()
		return fmt.Errorf("recording already in progress")
	case StateRateLimited:
		if remaining := m.rateLimitUntil.Sub(m.now()); remaining > 0 {
			m.mu.Unlock()
			return &apperr.BusyError{RetryAfter: remaining}
		}
		m.state = StateIdle
	}
	m.mu.Unlock()

	device, err := m.newDevice()
	if err != nil {
		m.failAcquisition(err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := device.Start(runCtx); err != nil {
		cancel()
		_ = device.Close()
		m.failAcquisition(err)
		return err
	}

	m.mu.Lock()
	m.state = StateRecording
	m.sessionID = uuid.NewString()
	m.startedAt = m.now()
	m.lastError = ""
	m.device = device
	m.cancel = cancel
	m.seq = 0
	m.mu.Unlock()

	slog.Info("recording session started", "session_id", m.sessionID, "chunk_interval", m.chunkInterval)
	go m.captureLoop(runCtx, device)
	return nil
}

func (m *Manager) failAcquisition(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateError
	if errors.Is(err, audio.ErrPermissionDenied) {
		m.lastError = "microphone permission denied"
	} else {
		m.lastError = fmt.Sprintf("could not access microphone: %v", err)
	}
	slog.Error("capture device acquisition failed", "error", err)
}

// captureLoop finalizes the accumulating sample buffer at every interval
// boundary and starts the next chunk immediately. The brief gap while the
// device restarts its buffer is accepted, and the ticker never waits for the
// previous chunk's transcription to finish.
func (m *Manager) captureLoop(ctx context.Context, device audio.Device) {
	ticker := time.NewTicker(m.chunkInterval)
	defer ticker.Stop()

	var samples []int16
	for {
		select {
		case <-ctx.Done():
			m.finalizeChunk(samples)
			return
		case frame, ok := <-device.Frames():
			if !ok {
				m.finalizeChunk(samples)
				return
			}
			samples = append(samples, frame...)
		case <-ticker.C:
			m.finalizeChunk(samples)
			samples = nil
		}
	}
}

func (m *Manager) finalizeChunk(samples []int16) {
	if len(samples) == 0 {
		return
	}
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()
	go m.transcribeChunk(seq, samples)
}

func (m *Manager) transcribeChunk(seq int, samples []int16) {
	blob, err := audio.EncodeWAV(samples, audio.SampleRate)
	if err != nil {
		slog.Error("chunk encoding failed", "seq", seq, "error", err)
		m.commitFragment(seq, "")
		return
	}
	if len(blob) < transcriber.MinChunkBytes {
		slog.Debug("chunk below minimum size, skipping", "seq", seq, "bytes", len(blob))
		m.commitFragment(seq, "")
		return
	}

	text, err := m.stt.Transcribe(context.Background(), transcriber.Chunk{
		Data: blob,
		MIME: "audio/wav",
		Seq:  seq,
	})
	if err != nil {
		m.handleTranscribeError(err)
		m.commitFragment(seq, "")
		return
	}
	m.commitFragment(seq, text)
}

func (m *Manager) handleTranscribeError(err error) {
	var busy *apperr.BusyError
	var rate *apperr.RateLimitedError
	var validation *apperr.ValidationError
	switch {
	case errors.As(err, &busy):
		m.enterRateLimited(busy.RetryAfter)
	case errors.As(err, &rate):
		m.enterRateLimited(time.Duration(rate.RetryAfterSeconds) * time.Second)
	case errors.As(err, &validation):
		// A 400 on a chunk is almost always silence; not worth showing.
		slog.Debug("transcription rejected chunk", "error", err)
	default:
		m.mu.Lock()
		m.lastError = err.Error()
		m.mu.Unlock()
		slog.Error("transcription failed", "error", err)
	}
}

// enterRateLimited gates new recordings for the given duration. Capture
// itself keeps running; only starting a new session is disabled, and the
// state flips back once the countdown elapses.
func (m *Manager) enterRateLimited(wait time.Duration) {
	m.mu.Lock()
	m.state = StateRateLimited
	m.rateLimitUntil = m.now().Add(wait)
	m.lastError = fmt.Sprintf("transcription rate limited, retry in %ds", int(wait.Seconds()))
	until := m.rateLimitUntil
	m.mu.Unlock()
	slog.Warn("recording rate limited", "until", until)

	time.AfterFunc(wait, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != StateRateLimited || m.now().Before(m.rateLimitUntil) {
			return
		}
		if m.device != nil {
			m.state = StateRecording
		} else {
			m.state = StateIdle
		}
		m.lastError = ""
	})
}

func (m *Manager) commitFragment(seq int, fragment string) {
	full, changed := m.transcript.Commit(seq, fragment)
	if !changed {
		return
	}
	m.dispatchAnnotation(full)
}

// dispatchAnnotation hands the new transcript snapshot to the annotation
// worker without blocking. The queue keeps only the newest snapshot: an older
// pending one is superseded, since the newer text contains it.
func (m *Manager) dispatchAnnotation(text string) {
	m.setAnnotationState(AnnotationLoading)
	for {
		select {
		case m.annTasks <- text:
			return
		default:
		}
		select {
		case <-m.annTasks:
		default:
		}
	}
}

func (m *Manager) annotationWorker() {
	for text := range m.annTasks {
		m.runAnnotation(text)
	}
}

func (m *Manager) runAnnotation(text string) {
	m.setAnnotationState(AnnotationLoading)
	result, err := m.ann.Annotate(context.Background(), text)
	if err == nil {
		inserted := m.merger.Add(result.Entries)
		m.mu.Lock()
		m.annState = AnnotationDone
		m.pendingRetry = ""
		m.mu.Unlock()
		if inserted > 0 {
			slog.Info("annotations merged", "inserted", inserted, "total", m.merger.Len())
		}
		return
	}

	var busy *apperr.BusyError
	var rate *apperr.RateLimitedError
	switch {
	case errors.As(err, &rate):
		m.deferAnnotation(text, time.Duration(rate.RetryAfterSeconds)*time.Second)
	case errors.As(err, &busy):
		m.deferAnnotation(text, busy.RetryAfter)
	default:
		m.setAnnotationState(AnnotationError)
		slog.Warn("annotation failed", "error", err)
	}
}

// deferAnnotation retains the text that hit the rate limit for one manual
// retry once the countdown elapses.
func (m *Manager) deferAnnotation(text string, wait time.Duration) {
	m.mu.Lock()
	m.annState = AnnotationRateLimited
	m.pendingRetry = text
	m.annRetryAt = m.now().Add(wait)
	m.mu.Unlock()
	slog.Warn("annotation rate limited", "retry_in", wait)
}

// RetryAnnotation re-dispatches the text that was pending when annotation
// got rate limited. It is rejected while the countdown is still running.
func (m *Manager) RetryAnnotation() error {
	m.mu.Lock()
	if m.annState != AnnotationRateLimited || m.pendingRetry == "" {
		m.mu.Unlock()
		return fmt.Errorf("no annotation retry pending")
	}
	if remaining := m.annRetryAt.Sub(m.now()); remaining > 0 {
		m.mu.Unlock()
		return &apperr.BusyError{RetryAfter: remaining}
	}
	text := m.pendingRetry
	m.mu.Unlock()

	m.dispatchAnnotation(text)
	return nil
}

// Stop finalizes the last partial chunk, releases the device, and cancels
// the timers. Network calls already in flight are deliberately not canceled;
// they may still commit after Stop returns.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.state != StateRecording && m.state != StateRateLimited {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	device := m.device
	sessionID := m.sessionID
	m.cancel = nil
	m.device = nil
	if m.state == StateRecording {
		m.state = StateIdle
	}
	m.mu.Unlock()

	// Cancel first so the capture loop flushes its partial buffer, then
	// release the device.
	if cancel != nil {
		cancel()
	}
	if device != nil {
		_ = device.Close()
	}
	slog.Info("recording session stopped", "session_id", sessionID)
}

// Clear wipes the transcript and merged annotations. Only an explicit user
// action reaches this.
func (m *Manager) Clear() {
	m.transcript.Clear()
	m.merger.Reset()
	m.mu.Lock()
	m.lastError = ""
	if m.annState != AnnotationRateLimited {
		m.annState = AnnotationIdle
	}
	m.mu.Unlock()
}

func (m *Manager) setAnnotationState(state AnnotationState) {
	m.mu.Lock()
	m.annState = state
	m.mu.Unlock()
}

func (m *Manager) Transcript() string {
	return m.transcript.Text()
}

func (m *Manager) Annotations() []annotator.Entry {
	return m.merger.Entries()
}

// Overlay renders the current transcript against the merged annotations.
func (m *Manager) Overlay() []Token {
	return Overlay(m.transcript.Text(), m.merger)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		State:           m.state,
		AnnotationState: m.annState,
		SessionID:       m.sessionID,
		Transcript:      m.transcript.Text(),
		LastError:       m.lastError,
		AnnotationCount: m.merger.Len(),
	}
	if m.state == StateRecording || m.state == StateRateLimited {
		status.ElapsedSeconds = int(m.now().Sub(m.startedAt).Seconds())
	}
	if m.state == StateRateLimited {
		if remaining := m.rateLimitUntil.Sub(m.now()); remaining > 0 {
			status.RetryInSeconds = int(remaining.Seconds())
		}
	}
	if m.annState == AnnotationRateLimited {
		if remaining := m.annRetryAt.Sub(m.now()); remaining > 0 {
			status.AnnotationRetryIn = int(remaining.Seconds())
		}
	}
	return status
}
