package speech

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultTranscribeModel = openai.AudioModelWhisper1
	defaultSpeechModel     = openai.SpeechModelTTS1
	defaultVoice           = openai.AudioSpeechNewParamsVoiceAlloy
)

// Service 封裝語音轉文字與文字轉語音
type Service struct {
	client openai.Client
}

func NewService(apiKey, baseURL string) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("speech API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Service{client: openai.NewClient(opts...)}, nil
}

// Transcribe 轉寫音檔為文字
func (s *Service) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	resp, err := s.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: defaultTranscribeModel,
		File:  f,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return resp.Text, nil
}

// Synthesize 將文字合成為語音,回傳音訊位元組
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model: defaultSpeechModel,
		Input: text,
		Voice: defaultVoice,
	})
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	return audio, nil
}
