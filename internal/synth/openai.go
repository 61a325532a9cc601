package synth

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
)

// openaiPCMRate is the sample rate of the OpenAI speech endpoint's raw PCM
// output.
const openaiPCMRate = 24000

// OpenAIProvider renders speech with the OpenAI audio endpoint. The
// gpt-4o-mini-tts model accepts delivery instructions, which carries the
// emotion blend through.
type OpenAIProvider struct {
	client openai.Client
	model  openai.SpeechModel
	name   string
}

// NewOpenAIProvider creates the primary OpenAI speech provider.
func NewOpenAIProvider(client openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: openai.SpeechModelGPT4oMiniTTS, name: "openai"}
}

// NewOpenAIBasicProvider creates a fallback provider on the plain tts-1
// model. It ignores delivery instructions but is a separately provisioned
// deployment, so it tends to survive gpt-4o-mini-tts outages.
func NewOpenAIBasicProvider(client openai.Client) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: openai.SpeechModelTTS1, name: "openai-basic"}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return p.name }

// Synthesize implements Provider. Output is raw PCM16 at 24 kHz mono.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	voice := openai.AudioSpeechNewParamsVoiceAlloy
	if req.Voice != "" {
		voice = openai.AudioSpeechNewParamsVoice(req.Voice)
	}
	params := openai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Speed > 0 {
		params.Speed = param.NewOpt(req.Speed)
	}
	if req.Instructions != "" && p.model == openai.SpeechModelGPT4oMiniTTS {
		params.Instructions = param.NewOpt(req.Instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	return &Audio{Data: data, SampleRate: openaiPCMRate, Channels: 1}, nil
}
