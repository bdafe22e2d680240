// Package archive exports the lobby chat transcript to S3 when a session starts
// running.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/vango-dev/readyroom/internal/metrics"
	"github.com/vango-dev/readyroom/pkg/game"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

var (
	// ErrNoBucket is returned by New when the bucket is empty.
	ErrNoBucket = errors.New("archive: no bucket configured")

	// ErrNoCredentials is returned when no AWS credentials are set in the
	// environment.
	ErrNoCredentials = errors.New("archive: no credentials in environment")
)

// Putter is the part of the S3 client the archiver uses.
type Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds the export destination.
type Config struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the S3 endpoint and switches to path-style
	// addressing, for S3-compatible stores.
	Endpoint string

	// Timeout bounds one upload.
	// Default: 30 seconds.
	Timeout time.Duration
}

// Transcript is the uploaded document.
type Transcript struct {
	RunID     string              `json:"run_id"`
	StartedAt time.Time           `json:"started_at"`
	Roster    []protocol.ClientID `json:"roster"`
	Lines     []Line              `json:"lines"`
}

// Line is one chat line of a transcript.
type Line struct {
	Author protocol.ClientID `json:"author"`
	Text   string            `json:"text"`
}

// NewTranscript builds the transcript of a transition.
func NewTranscript(t game.Transition) Transcript {
	tr := Transcript{
		RunID:     t.RunID,
		StartedAt: t.At.UTC(),
		Roster:    t.Roster,
		Lines:     make([]Line, 0, len(t.Chat)),
	}
	if tr.Roster == nil {
		tr.Roster = []protocol.ClientID{}
	}
	for _, e := range t.Chat {
		tr.Lines = append(tr.Lines, Line{Author: e.Author, Text: e.Text})
	}
	return tr
}

// envCredentials reads static credentials on every retrieval.
var envCredentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, ErrNoCredentials
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "Environment",
	}, nil
})

// NewClient creates an S3 client for cfg with credentials from the
// environment.
func NewClient(cfg Config) *s3.Client {
	return newClient(cfg, envCredentials)
}

func newClient(cfg Config, creds aws.CredentialsProvider) *s3.Client {
	opts := s3.Options{
		Region:                     cfg.Region,
		Credentials:                aws.NewCredentialsCache(creds),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Archiver) {
		a.metrics = m
	}
}

// Archiver uploads transcripts.
type Archiver struct {
	client  Putter
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// New creates an archiver writing through client.
func New(client Putter, cfg Config, opts ...Option) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	a := &Archiver{
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "archive")
	return a, nil
}

// Key returns the object key of a transcript. Transcripts without a run id get
// a random one.
func (a *Archiver) Key(tr Transcript) string {
	run := tr.RunID
	if run == "" {
		run = uuid.NewString()
	}
	return path.Join(a.cfg.Prefix, run, tr.StartedAt.Format("20060102T150405Z")+".json")
}

// Upload writes the transcript of t and returns its key.
func (a *Archiver) Upload(ctx context.Context, t game.Transition) (string, error) {
	tr := NewTranscript(t)
	body, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: encode transcript: %w", err)
	}
	key := a.Key(tr)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"run-id":     tr.RunID,
			"chat-lines": fmt.Sprint(len(tr.Lines)),
		},
	})
	a.metrics.ArchiveUpload(err)
	if err != nil {
		return "", fmt.Errorf("archive: upload %s: %w", key, err)
	}
	return key, nil
}

// Hook returns a transition hook that uploads in the background once the
// session starts running. It never blocks the driver.
func (a *Archiver) Hook() func(game.Transition) {
	return func(t game.Transition) {
		if t.To != game.PhaseRunning {
			return
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
			defer cancel()

			key, err := a.Upload(ctx, t)
			if err != nil {
				a.logger.Error("transcript upload failed", "error", err)
				return
			}
			a.logger.Info("transcript uploaded",
				"bucket", a.cfg.Bucket,
				"key", key,
				"chat_lines", len(t.Chat))
		}()
	}
}

// Wait blocks until every background upload has finished.
func (a *Archiver) Wait() {
	a.wg.Wait()
}
