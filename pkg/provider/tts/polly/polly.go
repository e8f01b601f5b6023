// Package polly provides an Amazon Polly-backed TTS provider. Polly returns
// raw PCM, which is wrapped in a WAV container before it leaves this package.
// It implements the tts.Provider interface and serves as the second backup
// voice for deployments with AWS credentials.
package polly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/provider/tts"
)

const (
	defaultRegion = "us-east-1"
	defaultVoice  = "Joanna"

	// sampleRate is the PCM rate requested from Polly, matching the rest
	// of the pipeline.
	sampleRate = 16000
)

// SpeechAPI is the subset of the Polly client this provider uses. Tests
// substitute an in-memory implementation.
type SpeechAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, params *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// Config holds the Polly connection settings. Zero values take defaults; with
// no static keys the ambient AWS credential chain is used.
type Config struct {
	Region          string
	VoiceID         string
	Engine          string // "neural" (default) or "standard"
	AccessKeyID     string
	SecretAccessKey string
}

// Provider implements tts.Provider backed by Amazon Polly.
type Provider struct {
	client  SpeechAPI
	voiceID pollytypes.VoiceId
	engine  pollytypes.Engine
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Polly Provider, resolving AWS credentials from cfg or the
// default chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("polly: load aws config: %w", err)
	}
	return NewWithClient(polly.NewFromConfig(awsCfg), cfg), nil
}

// NewWithClient creates a Provider around an existing Polly client. Tests use
// this to avoid AWS configuration.
func NewWithClient(client SpeechAPI, cfg Config) *Provider {
	voice := cfg.VoiceID
	if strings.TrimSpace(voice) == "" {
		voice = defaultVoice
	}
	engine := pollytypes.EngineNeural
	if strings.EqualFold(cfg.Engine, "standard") {
		engine = pollytypes.EngineStandard
	}
	return &Provider{
		client:  client,
		voiceID: pollytypes.VoiceId(voice),
		engine:  engine,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "polly" }

// Synthesize converts text into a 16kHz mono WAV clip.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       p.engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   aws.String(fmt.Sprintf("%d", sampleRate)),
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      p.voiceID,
	})
	if err != nil {
		return nil, fmt.Errorf("polly: synthesize: %w", classify(err))
	}
	if out == nil || out.AudioStream == nil {
		return nil, errors.New("polly: synthesize: empty audio stream")
	}
	defer out.AudioStream.Close()

	pcm, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("polly: read audio stream: %w", err)
	}
	return audio.EncodeWAV(pcm, audio.Format{SampleRate: sampleRate, Channels: 1}), nil
}

// HealthCheck lists voices for the configured engine, which exercises
// credentials and connectivity without billing a synthesis.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{
		Engine:       p.engine,
		LanguageCode: pollytypes.LanguageCodeEnUs,
	})
	if err != nil {
		return fmt.Errorf("polly: health check: %w", classify(err))
	}
	return nil
}

// classify keeps the AWS error code visible in logs while hiding the SDK's
// deeply nested wrapping.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}
