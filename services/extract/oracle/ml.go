// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/AleutianAI/egx/services/extract/circuit"
	"github.com/AleutianAI/egx/services/extract/egraph"
)

// MLName is the registered name of the remote delay model oracle.
const MLName = "ml"

// ProcessCircuitFilesMethod is the full gRPC method the ML oracle calls.
const ProcessCircuitFilesMethod = "/vectorservice.VectorService/ProcessCircuitFiles"

// MLConfig configures the remote delay model client.
type MLConfig struct {
	// Address is the gRPC target, e.g. "localhost:50051".
	Address string `yaml:"address" json:"address"`

	// Rate is the sustained request rate per second. Zero disables limiting.
	Rate float64 `yaml:"rate" json:"rate" validate:"gte=0"`

	// Burst is the limiter burst size (default: 1).
	Burst int `yaml:"burst" json:"burst" validate:"gte=0"`

	// Insecure disables transport security.
	Insecure bool `yaml:"insecure" json:"insecure"`

	// Timeout bounds one call. Zero means no limit beyond the context.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ML scores a candidate with a remote model that predicts circuit delay
// from the feature files of the extracted netlist.
//
// Thread Safety: Safe for concurrent use.
type ML struct {
	conn    grpc.ClientConnInterface
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// DialML opens a client connection for config.Address.
func DialML(config MLConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if config.Address == "" {
		return nil, errors.New("ml oracle address is empty")
	}
	var dialOpts []grpc.DialOption
	if config.Insecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(config.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return conn, nil
}

// NewML creates an ML oracle over conn.
func NewML(conn grpc.ClientConnInterface, config MLConfig) *ML {
	m := &ML{conn: conn, timeout: config.Timeout, logger: slog.Default()}
	if config.Rate > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(config.Rate), burst)
	}
	return m
}

// WithLogger sets the logger.
func (m *ML) WithLogger(logger *slog.Logger) *ML {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Name implements Oracle.
func (m *ML) Name() string { return MLName }

// Evaluate implements Oracle.
func (m *ML) Evaluate(ctx context.Context, c Candidate) (egraph.Cost, error) {
	feats, err := circuit.ExtractFeatures(c.Graph, c.Roots, c.Result)
	if err != nil {
		return egraph.Infinity, newError(m.Name(), c, KindInvalid, err)
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return egraph.Infinity, newError(m.Name(), c, KindTimeout, err)
		}
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	req := &CircuitFiles{
		EdgeList: feats.EdgeList,
		NodeCSV:  feats.NodeCSV,
		Summary:  string(feats.Summary),
	}
	reply := &DelayReply{}
	if err := m.conn.Invoke(ctx, ProcessCircuitFilesMethod, req, reply, grpc.ForceCodec(wireCodec{})); err != nil {
		kind := KindTransport
		if status.Code(err) == codes.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return egraph.Infinity, newError(m.Name(), c, kind, err)
	}

	if math.IsNaN(reply.Delay) || math.IsInf(reply.Delay, 0) || reply.Delay < 0 {
		return egraph.Infinity, newError(m.Name(), c, KindParse, fmt.Errorf("%w: %v", ErrNoDelay, reply.Delay))
	}
	m.logger.Debug("ml delay", slog.String("candidate", c.ID), slog.Float64("delay", reply.Delay))
	return egraph.Cost(reply.Delay), nil
}

// VectorServer is the server side of ProcessCircuitFilesMethod.
type VectorServer interface {
	ProcessCircuitFiles(ctx context.Context, req *CircuitFiles) (*DelayReply, error)
}

// RegisterVectorServer registers impl on s. The server must be created
// with ServerCodec.
func RegisterVectorServer(s grpc.ServiceRegistrar, impl VectorServer) {
	s.RegisterService(&vectorServiceDesc, impl)
}

// ServerCodec is the server option matching the client's message codec.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(wireCodec{})
}

var vectorServiceDesc = grpc.ServiceDesc{
	ServiceName: "vectorservice.VectorService",
	HandlerType: (*VectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProcessCircuitFiles",
			Handler:    processCircuitFilesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vectorservice.proto",
}

func processCircuitFilesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CircuitFiles)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VectorServer).ProcessCircuitFiles(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProcessCircuitFilesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VectorServer).ProcessCircuitFiles(ctx, req.(*CircuitFiles))
	}
	return interceptor(ctx, in, info, handler)
}
