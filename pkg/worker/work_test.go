package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKindRoundTrip(t *testing.T) {
	kinds := []Kind{
		KindChatCompletion,
		KindPdfExtraction,
		KindAudioTranscription,
		KindRagIngestion,
		KindTextToSpeech,
	}
	for _, k := range kinds {
		assert.Equal(t, k, ParseKind(k.String()))
	}
}

func TestParseKindUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, ParseKind("image_generation"))
	assert.Equal(t, KindUnknown, ParseKind(""))
}

func TestKindZeroValueIsUnknown(t *testing.T) {
	var req Request
	assert.Equal(t, KindUnknown, req.Kind)
}

func TestOutcomeEchoesRequestIdentity(t *testing.T) {
	req := Request{Kind: KindChatCompletion, RequestID: "abc"}

	ok := Success(req, "done")
	assert.Equal(t, "abc", ok.RequestID)
	assert.Equal(t, KindChatCompletion, ok.Kind)
	assert.True(t, ok.OK)

	fail := Failure(req, "nope")
	assert.Equal(t, "abc", fail.RequestID)
	assert.Equal(t, KindChatCompletion, fail.Kind)
	assert.False(t, fail.OK)
	assert.Equal(t, "nope", fail.Reason)
}
