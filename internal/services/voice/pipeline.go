// internal/services/voice/pipeline.go
package voice

import (
	"context"
	"time"

	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/metrics"
	"platform-services/pkg/registry"
)

// Sink receives the pipeline's output frames. The socket session implements
// it; tests substitute a recorder.
type Sink interface {
	SendControl(msg ControlMessage) error
	SendAudio(audio []byte) error
}

// Pipeline runs one utterance end to end: transcription, intent
// classification, dispatch against the platform API and speech synthesis.
type Pipeline struct {
	stt        Transcriber
	classifier Classifier
	dispatcher Dispatcher
	tts        Synthesizer
	registry   *registry.IntentRegistry
	publisher  events.Publisher
	logger     logger.Logger
}

func NewPipeline(
	stt Transcriber,
	classifier Classifier,
	dispatcher Dispatcher,
	tts Synthesizer,
	reg *registry.IntentRegistry,
	publisher events.Publisher,
	log logger.Logger,
) *Pipeline {
	return &Pipeline{
		stt:        stt,
		classifier: classifier,
		dispatcher: dispatcher,
		tts:        tts,
		registry:   reg,
		publisher:  publisher,
		logger:     log,
	}
}

// Utterance is one unit of work. Either Audio or Text is set; Text comes from
// a text_fallback frame and skips transcription.
type Utterance struct {
	UserID string
	Token  string
	Audio  []byte
	Text   string
}

// Run processes one utterance and streams the results into the sink. Vendor
// failures surface as error control frames; the caller keeps the session
// open.
func (p *Pipeline) Run(ctx context.Context, u Utterance, sink Sink) {
	transcript := u.Text
	if transcript == "" {
		start := time.Now()
		text, err := p.stt.Transcribe(ctx, u.Audio)
		metrics.VoicePipelineDuration.WithLabelValues("stt").Observe(time.Since(start).Seconds())
		if err != nil {
			p.logger.WithError(err).Warn("transcription failed")
			p.sendError(sink, commonerrors.ErrCodeSTTFailed)
			return
		}
		transcript = text
	}

	if err := sink.SendControl(ControlMessage{Type: MsgTranscript, Text: transcript}); err != nil {
		return
	}

	start := time.Now()
	intentName, slots, err := p.classifier.Classify(ctx, transcript)
	metrics.VoicePipelineDuration.WithLabelValues("intent").Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.WithError(err).Warn("intent classification failed, falling back to unknown")
		intentName = IntentUnknown
	}

	responseText := p.execute(ctx, u, intentName, slots)

	if err := sink.SendControl(ControlMessage{Type: MsgResponseText, Text: responseText, Intent: intentName}); err != nil {
		return
	}

	p.publisher.Emit(ctx, events.TypeVoiceUtterance, u.UserID, map[string]interface{}{
		"intent":          intentName,
		"transcript_size": len(transcript),
	})

	start = time.Now()
	audio, err := p.tts.Synthesize(ctx, responseText)
	metrics.VoicePipelineDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.WithError(err).Warn("speech synthesis failed")
		p.sendError(sink, commonerrors.ErrCodeTTSFailed)
		return
	}
	if err := sink.SendAudio(audio); err != nil {
		return
	}
}

func (p *Pipeline) execute(ctx context.Context, u Utterance, intentName string, slots map[string]interface{}) string {
	if intentName == IntentUnknown {
		return "Sorry, I did not understand that. Could you rephrase?"
	}

	intent, ok := p.registry.Lookup(intentName)
	if !ok {
		return "Sorry, I did not understand that. Could you rephrase?"
	}

	if slots == nil {
		slots = map[string]interface{}{}
	}

	start := time.Now()
	summary, err := p.dispatcher.Dispatch(ctx, intent, slots, u.Token)
	metrics.VoicePipelineDuration.WithLabelValues("dispatch").Observe(time.Since(start).Seconds())
	if err != nil {
		p.logger.WithError(err).WithFields(map[string]interface{}{
			"intent": intentName,
		}).Warn("intent dispatch failed")
		return "I could not complete that request right now."
	}
	return summary
}

func (p *Pipeline) sendError(sink Sink, code commonerrors.ErrorCode) {
	_ = sink.SendControl(ControlMessage{Type: MsgError, Code: string(code)})
}
