// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle_test

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/AleutianAI/egx/services/extract/egraph"
	"github.com/AleutianAI/egx/services/extract/oracle"
)

type delayServer struct {
	delay float64
	err   error
	last  chan *oracle.CircuitFiles
}

func (s *delayServer) ProcessCircuitFiles(_ context.Context, req *oracle.CircuitFiles) (*oracle.DelayReply, error) {
	select {
	case s.last <- req:
	default:
	}
	if s.err != nil {
		return nil, s.err
	}
	return &oracle.DelayReply{Delay: s.delay}, nil
}

func startDelayServer(t *testing.T, impl *delayServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(oracle.ServerCodec())
	oracle.RegisterVectorServer(srv, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestML_Evaluate(t *testing.T) {
	impl := &delayServer{delay: 12.5, last: make(chan *oracle.CircuitFiles, 1)}
	conn := startDelayServer(t, impl)
	ml := oracle.NewML(conn, oracle.MLConfig{Rate: 100, Burst: 4})

	cost, err := ml.Evaluate(context.Background(), circuitCandidate())
	require.NoError(t, err)
	assert.Equal(t, egraph.Cost(12.5), cost)

	req := <-impl.last
	assert.NotEmpty(t, req.EdgeList)
	assert.True(t, strings.HasPrefix(req.NodeCSV, "id,class,op,cost,fanin,fanout"))
	assert.Contains(t, req.Summary, `"dag_cost":3`)
}

func TestML_TransportError(t *testing.T) {
	impl := &delayServer{err: status.Error(codes.Unavailable, "model loading")}
	conn := startDelayServer(t, impl)
	ml := oracle.NewML(conn, oracle.MLConfig{})

	cost, err := ml.Evaluate(context.Background(), circuitCandidate())
	require.Error(t, err)
	assert.True(t, cost.IsInf())
	assert.Equal(t, oracle.KindTransport, oracle.KindOf(err))
}

func TestML_NegativeDelayRejected(t *testing.T) {
	conn := startDelayServer(t, &delayServer{delay: -1})
	_, err := oracle.NewML(conn, oracle.MLConfig{}).Evaluate(context.Background(), circuitCandidate())
	assert.Equal(t, oracle.KindParse, oracle.KindOf(err))
}

func TestML_BreakerOpensOnRepeatedFailure(t *testing.T) {
	conn := startDelayServer(t, &delayServer{err: status.Error(codes.Internal, "boom")})
	guarded := oracle.Guard(oracle.NewML(conn, oracle.MLConfig{}), oracle.NewBreaker(oracle.DefaultBreakerConfig()))

	for i := 0; i < 3; i++ {
		_, err := guarded.Evaluate(context.Background(), circuitCandidate())
		require.Equal(t, oracle.KindTransport, oracle.KindOf(err))
	}
	_, err := guarded.Evaluate(context.Background(), circuitCandidate())
	assert.Equal(t, oracle.KindBreaker, oracle.KindOf(err))
	assert.Equal(t, oracle.BreakerOpen, guarded.Breaker().State())
}
