package core

import (
	"context"

	"pkt.systems/tmplay/schema"
)

// Service is the transport-agnostic API for playground sessions.
type Service interface {
	CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.CreateSessionResponse, error)
	CloseSession(ctx context.Context, req schema.CloseSessionRequest) error
	GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error)
	SetSource(ctx context.Context, req schema.SetSourceRequest) (schema.GetSessionResponse, error)
	SetTape(ctx context.Context, req schema.SetTapeRequest) (schema.GetSessionResponse, error)
	LoadExample(ctx context.Context, req schema.LoadExampleRequest) (schema.GetSessionResponse, error)
	Compile(ctx context.Context, req schema.CompileRequest) (schema.CompileResponse, error)
	Run(ctx context.Context, req schema.RunRequest) (schema.RunResponse, error)
	Playback(ctx context.Context, req schema.PlaybackRequest) (schema.PlaybackResponse, error)
	SetSpeed(ctx context.Context, req schema.SetSpeedRequest) (schema.PlaybackResponse, error)
	SetViewport(ctx context.Context, req schema.SetViewportRequest) (schema.GetViewportResponse, error)
	GetViewport(ctx context.Context, req schema.GetViewportRequest) (schema.GetViewportResponse, error)
	GetArtifact(ctx context.Context, req schema.GetArtifactRequest) (schema.GetArtifactResponse, error)
	ListExamples(ctx context.Context) (schema.ListExamplesResponse, error)
	EngineStatus(ctx context.Context) schema.EngineStatus
}
