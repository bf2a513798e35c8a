// Package observability adapts the teacher's structured logging, metrics,
// and tracing conventions (internal/observability) to this protocol's own
// events: envelopes, RPC calls, Merkle proof outcomes, and upload/download
// sessions.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with named event methods, following the teacher's
// Logger (internal/observability/logger.go) rather than ad-hoc
// log.Printf calls.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a structured logger tagged with service/version.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", hostname()).
		Logger()

	return &Logger{logger: logger}
}

// Zerolog exposes the underlying zerolog.Logger, for callers (e.g.
// transfer.Receiver) that take one directly.
func (l *Logger) Zerolog() zerolog.Logger { return l.logger }

// WithSession adds request_id context, matching the RPC call/stream
// correlation id used throughout rpcmux and transfer.
func (l *Logger) WithSession(requestID string) *Logger {
	return &Logger{logger: l.logger.With().Str("request_id", requestID).Logger()}
}

// WithPeer adds peer/document context.
func (l *Logger) WithPeer(document string) *Logger {
	return &Logger{logger: l.logger.With().Str("document", document).Logger()}
}

// WithEnvelope adds envelope target/id context.
func (l *Logger) WithEnvelope(target string, id string) *Logger {
	return &Logger{logger: l.logger.With().Str("target", target).Str("envelope_id", id).Logger()}
}

func (l *Logger) Debug(msg string)             { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)              { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)              { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(err error, msg string)  { l.logger.Error().Err(err).Msg(msg) }
func (l *Logger) Fatal(err error, msg string)  { l.logger.Fatal().Err(err).Msg(msg) }

// UploadAccepted logs an upload session's start.
func (l *Logger) UploadAccepted(requestID, clientFileID string, totalChunks uint64) {
	l.logger.Info().
		Str("request_id", requestID).
		Str("client_file_id", clientFileID).
		Uint64("total_chunks", totalChunks).
		Msg("upload accepted")
}

// ChunkVerified logs a chunk that passed Merkle proof verification.
func (l *Logger) ChunkVerified(requestID string, index uint64, size int) {
	l.logger.Debug().
		Str("request_id", requestID).
		Uint64("chunk_index", index).
		Int("chunk_size", size).
		Msg("chunk verified")
}

// ProofFailed logs a chunk that failed Merkle proof verification, the
// event that terminates an upload or download session.
func (l *Logger) ProofFailed(requestID string, index uint64) {
	l.logger.Warn().
		Str("request_id", requestID).
		Uint64("chunk_index", index).
		Msg("merkle proof verification failed")
}

// TransferCompleted logs a finished upload or download.
func (l *Logger) TransferCompleted(requestID, contentID string, totalChunks uint64, duration time.Duration) {
	l.logger.Info().
		Str("request_id", requestID).
		Str("content_id", contentID).
		Uint64("total_chunks", totalChunks).
		Float64("duration_seconds", duration.Seconds()).
		Msg("transfer completed")
}

// RPCCallFailed logs a failed RPC call (timeout, denial, or transport
// error), mirroring the teacher's ConnectionFailed shape.
func (l *Logger) RPCCallFailed(method string, err error) {
	l.logger.Error().
		Str("method", method).
		Err(err).
		Msg("rpc call failed")
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
