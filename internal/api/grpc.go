package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/codejudge/internal/errors"
	"github.com/victornm/codejudge/internal/leaderboard"
)

// JudgeServiceName is the fully qualified name of the gRPC judge service.
// Requests and responses are google.protobuf.Struct values shaped like the HTTP JSON bodies.
const JudgeServiceName = "codejudge.v1.JudgeService"

type judgeServer struct {
	api *API
}

func (s *judgeServer) Judge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req JudgeRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}
	if req.Language == "" || req.Code == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("language and code are required"))
	}

	res, err := s.api.judge.Judge(ctx, req.toDomain())
	if err != nil {
		return nil, err
	}

	return encodeStruct(newJudgeResult(res))
}

func (s *judgeServer) GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req LeaderboardQuery
	if err := decodeStruct(in, &req); err != nil {
		return nil, err
	}

	l, err := s.api.leaderboard.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{
		ContestID: req.ContestID,
		Page:      req.Page,
		Limit:     req.Limit,
	})
	if err != nil {
		return nil, err
	}

	return encodeStruct(newLeaderboard(l))
}

func decodeStruct(in *structpb.Struct, out any) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Internal(err)
	}

	if err := d.Decode(in.AsMap()); err != nil {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err))
	}

	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("marshal response: %w", err))
	}

	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, errors.Internal(fmt.Errorf("unmarshal response: %w", err))
	}

	return out, nil
}

type judgeService interface {
	Judge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var judgeServiceDesc = grpc.ServiceDesc{
	ServiceName: JudgeServiceName,
	HandlerType: (*judgeService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Judge",
			Handler:    unaryHandler("Judge", judgeService.Judge),
		},
		{
			MethodName: "GetLeaderboard",
			Handler:    unaryHandler("GetLeaderboard", judgeService.GetLeaderboard),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "codejudge/v1/judge.proto",
}

type unaryMethod = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler(method string, call func(judgeService, context.Context, *structpb.Struct) (*structpb.Struct, error)) unaryMethod {
	fullMethod := "/" + JudgeServiceName + "/" + method

	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(judgeService), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(judgeService), ctx, req.(*structpb.Struct))
		}

		return interceptor(ctx, in, info, handler)
	}
}
