package orchestrator

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// startExecutionMethod is the orchestrator's generic start endpoint. Requests
// and responses are struct-encoded, so no generated client is required.
const startExecutionMethod = "/orchestrator.v1.Orchestrator/StartExecution"

// Client starts workflow executions over gRPC.
type Client struct {
	endpoint string
	conn     *grpc.ClientConn
}

// NewClient dials the orchestrator endpoint. TLS is inferred from the scheme.
func NewClient(ctx context.Context, endpoint string) (*Client, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	opts = append(opts, grpc.WithBlock())

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial orchestrator %s: %w", target, err)
	}

	return &Client{endpoint: endpoint, conn: conn}, nil
}

// StartExecution starts one workflow run and returns its execution id. The
// orchestrator deduplicates on the execution name, so callers must generate a
// fresh name per logical start.
func (c *Client) StartExecution(ctx context.Context, definition, name string, input map[string]any) (string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"definition": definition,
		"name":       name,
		"input":      input,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode execution input: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, startExecutionMethod, req, resp); err != nil {
		return "", fmt.Errorf("start execution %s: %w", name, err)
	}

	if v, ok := resp.Fields["execution_id"]; ok {
		return v.GetStringValue(), nil
	}
	return name, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
