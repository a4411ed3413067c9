// internal/services/voice/pipeline_test.go
package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/pkg/registry"
)

type fakeTranscriber struct {
	text  string
	err   error
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeClassifier struct {
	intent string
	slots  map[string]interface{}
	err    error
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (string, map[string]interface{}, error) {
	return f.intent, f.slots, f.err
}

type fakeDispatcher struct {
	summary    string
	err        error
	dispatched []string
	payloads   []map[string]interface{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, intent *registry.Intent, payload map[string]interface{}, _ string) (string, error) {
	f.dispatched = append(f.dispatched, intent.Name)
	f.payloads = append(f.payloads, payload)
	return f.summary, f.err
}

type fakeSynthesizer struct {
	audio []byte
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return f.audio, f.err
}

type recordingSink struct {
	controls []ControlMessage
	audio    [][]byte
}

func (r *recordingSink) SendControl(msg ControlMessage) error {
	r.controls = append(r.controls, msg)
	return nil
}

func (r *recordingSink) SendAudio(audio []byte) error {
	r.audio = append(r.audio, audio)
	return nil
}

func (r *recordingSink) typesSent() []string {
	out := make([]string, 0, len(r.controls))
	for _, m := range r.controls {
		out = append(out, m.Type)
	}
	return out
}

func testRegistry() *registry.IntentRegistry {
	return &registry.IntentRegistry{
		Version: "1",
		Intents: []registry.Intent{
			{
				Name:        "list_documents",
				DisplayName: "List documents",
				Description: "List the user's documents",
				Method:      "GET",
				Path:        "/api/v1/documents",
			},
			{
				Name:        "document_status",
				DisplayName: "Document status",
				Description: "Get the review status of one document",
				Method:      "GET",
				Path:        "/api/v1/documents/{documentId}",
				PayloadSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"documentId"},
					"properties": map[string]interface{}{
						"documentId": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	}
}

func newTestPipeline(stt Transcriber, cls Classifier, disp Dispatcher, tts Synthesizer) *Pipeline {
	return NewPipeline(stt, cls, disp, tts, testRegistry(), events.NopPublisher{}, logger.NewNoOpLogger())
}

func TestPipelineFullRun(t *testing.T) {
	stt := &fakeTranscriber{text: "show my documents"}
	disp := &fakeDispatcher{summary: "You have three documents."}
	tts := &fakeSynthesizer{audio: []byte{0x01, 0x02}}
	p := newTestPipeline(stt, &fakeClassifier{intent: "list_documents"}, disp, tts)
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Token: "tok", Audio: []byte("pcm")}, sink)

	assert.Equal(t, []string{MsgTranscript, MsgResponseText}, sink.typesSent())
	assert.Equal(t, "show my documents", sink.controls[0].Text)
	assert.Equal(t, "You have three documents.", sink.controls[1].Text)
	assert.Equal(t, "list_documents", sink.controls[1].Intent)
	assert.Equal(t, []string{"list_documents"}, disp.dispatched)
	require.Len(t, sink.audio, 1)
	assert.Equal(t, []byte{0x01, 0x02}, sink.audio[0])
}

func TestPipelineForwardsSlotsToDispatcher(t *testing.T) {
	disp := &fakeDispatcher{summary: "Your document report.pdf is approved."}
	cls := &fakeClassifier{intent: "document_status", slots: map[string]interface{}{"documentId": "doc-42"}}
	p := newTestPipeline(&fakeTranscriber{text: "what is the status of doc-42"}, cls, disp, &fakeSynthesizer{audio: []byte{0x01}})
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Token: "tok", Audio: []byte("pcm")}, sink)

	require.Equal(t, []string{"document_status"}, disp.dispatched)
	require.Len(t, disp.payloads, 1)
	assert.Equal(t, map[string]interface{}{"documentId": "doc-42"}, disp.payloads[0])
	assert.Equal(t, "Your document report.pdf is approved.", sink.controls[1].Text)
}

func TestPipelineTextFallbackSkipsTranscription(t *testing.T) {
	stt := &fakeTranscriber{err: errors.New("should not be called")}
	disp := &fakeDispatcher{summary: "Done."}
	p := newTestPipeline(stt, &fakeClassifier{intent: "list_documents"}, disp, &fakeSynthesizer{audio: []byte{0x01}})
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Token: "tok", Text: "show my documents"}, sink)

	assert.Zero(t, stt.calls)
	assert.Equal(t, []string{MsgTranscript, MsgResponseText}, sink.typesSent())
	assert.Equal(t, "show my documents", sink.controls[0].Text)
}

func TestPipelineTranscriptionFailure(t *testing.T) {
	stt := &fakeTranscriber{err: errors.New("whisper down")}
	disp := &fakeDispatcher{}
	p := newTestPipeline(stt, &fakeClassifier{intent: "list_documents"}, disp, &fakeSynthesizer{})
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Audio: []byte("pcm")}, sink)

	require.Len(t, sink.controls, 1)
	assert.Equal(t, MsgError, sink.controls[0].Type)
	assert.Equal(t, string(commonerrors.ErrCodeSTTFailed), sink.controls[0].Code)
	assert.Empty(t, disp.dispatched)
	assert.Empty(t, sink.audio)
}

func TestPipelineClassifierFailureFallsBackToUnknown(t *testing.T) {
	disp := &fakeDispatcher{}
	cls := &fakeClassifier{err: errors.New("openrouter down")}
	p := newTestPipeline(&fakeTranscriber{text: "anything"}, cls, disp, &fakeSynthesizer{audio: []byte{0x01}})
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Audio: []byte("pcm")}, sink)

	require.Len(t, sink.controls, 2)
	assert.Equal(t, IntentUnknown, sink.controls[1].Intent)
	assert.Empty(t, disp.dispatched, "unknown intent must not be dispatched")
}

func TestPipelineDispatchFailure(t *testing.T) {
	disp := &fakeDispatcher{err: errors.New("backend down")}
	p := newTestPipeline(&fakeTranscriber{text: "show my documents"}, &fakeClassifier{intent: "list_documents"}, disp, &fakeSynthesizer{audio: []byte{0x01}})
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Audio: []byte("pcm")}, sink)

	require.Len(t, sink.controls, 2)
	assert.Equal(t, MsgResponseText, sink.controls[1].Type)
	assert.Contains(t, sink.controls[1].Text, "could not complete")
	require.Len(t, sink.audio, 1, "a failed dispatch still gets a spoken reply")
}

func TestPipelineSynthesisFailureKeepsTextFrames(t *testing.T) {
	tts := &fakeSynthesizer{err: errors.New("elevenlabs down")}
	p := newTestPipeline(&fakeTranscriber{text: "show my documents"}, &fakeClassifier{intent: "list_documents"}, &fakeDispatcher{summary: "ok"}, tts)
	sink := &recordingSink{}

	p.Run(context.Background(), Utterance{UserID: "user-1", Audio: []byte("pcm")}, sink)

	assert.Equal(t, []string{MsgTranscript, MsgResponseText, MsgError}, sink.typesSent())
	assert.Equal(t, string(commonerrors.ErrCodeTTSFailed), sink.controls[2].Code)
	assert.Empty(t, sink.audio)
}
