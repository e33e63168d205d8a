package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/abroad-advisor/internal/domain"
)

// runMethod is the backend RPC. Request and response are
// google.protobuf.Struct so the Python services can evolve fields freely.
const runMethod = "/advisor.v1.Backend/Run"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	// ErrBackendResponse is returned when the backend reports a failure in
	// its response body.
	ErrBackendResponse = errors.New("backend returned error")
	// ErrMalformedResponse is returned when the response has no usable
	// turns field.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// GrpcClient calls a backend service over gRPC.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration for addr.
func DefaultGrpcClientConfig(addr string) GrpcClientConfig {
	return GrpcClientConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the backend at cfg.Address and waits until the
// connection is ready or cfg.ConnectTimeout passes.
func NewGrpcClient(cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, errors.New("backend address is empty")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("backend at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to backend service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Addr returns the backend address.
func (c *GrpcClient) Addr() string {
	return c.addr
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks the backend with the standard gRPC health protocol.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("backend %s not serving: %s", c.addr, resp.GetStatus())
	}
	return nil
}

// Run sends req to the backend and decodes the returned transcript.
func (c *GrpcClient) Run(ctx context.Context, req Request) (domain.Transcript, error) {
	in, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Calling backend",
		"address", c.addr,
		"intent", req.Intent,
		"user_id", req.UserID,
		"request_id", req.RequestID,
	)

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, runMethod, in, out); err != nil {
		return nil, fmt.Errorf("backend run: %w", err)
	}
	return decodeResponse(out)
}

func encodeRequest(req Request) (*structpb.Struct, error) {
	fields := map[string]any{
		"intent":     string(req.Intent),
		"message":    req.Message,
		"user_id":    req.UserID,
		"session_id": req.SessionID,
		"request_id": req.RequestID,
		"profile":    req.Profile.AsMap(),
	}
	if len(req.FileInfo) > 0 {
		fields["file_info"] = req.FileInfo
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode backend request: %w", err)
	}
	return s, nil
}

func decodeResponse(out *structpb.Struct) (domain.Transcript, error) {
	fields := out.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrBackendResponse, msg)
	}

	turnsValue, ok := fields["turns"]
	if !ok {
		return nil, ErrMalformedResponse
	}
	list := turnsValue.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: turns is not a list", ErrMalformedResponse)
	}

	transcript := make(domain.Transcript, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		turn := v.GetStructValue()
		if turn == nil {
			continue
		}
		tf := turn.GetFields()
		transcript = append(transcript, domain.Turn{
			Kind:    domain.ParseTurnKind(tf["kind"].GetStringValue()),
			Content: tf["content"].GetStringValue(),
		})
	}
	return transcript, nil
}
