package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "flagstore.v1.FlagService"

// codecName is the content-subtype the flag service speaks
// (application/grpc+json).
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type CreateFlagRequest struct {
	Flag flags.Flag `json:"flag"`
}

type CreateFlagResponse struct{}

type GetFlagRequest struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

type GetFlagResponse struct {
	Flag  flags.Flag `json:"flag"`
	Found bool       `json:"found"`
}

type ListFlagsRequest struct{}

type ListFlagsResponse struct {
	Flags []flags.Flag `json:"flags"`
}

type UpdateFlagRequest struct {
	Name        string      `json:"name"`
	Environment string      `json:"environment"`
	Patch       flags.Patch `json:"patch"`
}

type UpdateFlagResponse struct {
	Flag flags.Flag `json:"flag"`
}

type DeleteFlagRequest struct {
	Name string `json:"name"`
}

type DeleteFlagResponse struct{}

// FlagServiceServer is the server API for the flag service.
type FlagServiceServer interface {
	CreateFlag(context.Context, *CreateFlagRequest) (*CreateFlagResponse, error)
	GetFlag(context.Context, *GetFlagRequest) (*GetFlagResponse, error)
	ListFlags(context.Context, *ListFlagsRequest) (*ListFlagsResponse, error)
	UpdateFlag(context.Context, *UpdateFlagRequest) (*UpdateFlagResponse, error)
	DeleteFlag(context.Context, *DeleteFlagRequest) (*DeleteFlagResponse, error)
}

func unaryHandler[Req, Resp any](method string, call func(FlagServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FlagServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FlagServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FlagServiceDesc describes the flag service for grpc.Server.RegisterService.
var FlagServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FlagServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateFlag", Handler: unaryHandler("CreateFlag", FlagServiceServer.CreateFlag)},
		{MethodName: "GetFlag", Handler: unaryHandler("GetFlag", FlagServiceServer.GetFlag)},
		{MethodName: "ListFlags", Handler: unaryHandler("ListFlags", FlagServiceServer.ListFlags)},
		{MethodName: "UpdateFlag", Handler: unaryHandler("UpdateFlag", FlagServiceServer.UpdateFlag)},
		{MethodName: "DeleteFlag", Handler: unaryHandler("DeleteFlag", FlagServiceServer.DeleteFlag)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flagstore/v1/flags",
}

// RegisterFlagServiceServer registers srv with s.
func RegisterFlagServiceServer(s grpc.ServiceRegistrar, srv FlagServiceServer) {
	s.RegisterService(&FlagServiceDesc, srv)
}

// GRPCServer implements FlagServiceServer.
// It wraps a flags.Storage and exposes it over gRPC.
type GRPCServer struct {
	Storage flags.Storage
	Logger  hclog.Logger
}

var _ FlagServiceServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given storage.
func NewGRPCServer(storage flags.Storage, logger hclog.Logger) *GRPCServer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &GRPCServer{
		Storage: storage,
		Logger:  logger,
	}
}

func (s *GRPCServer) toStatus(method string, err error) error {
	switch {
	case flags.IsDuplicate(err):
		return status.Error(codes.AlreadyExists, err.Error())
	case flags.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, flags.ErrUnknownEnvironment):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.Logger.Error("storage request failed", "method", method, "error", err)
		return status.Error(codes.Internal, "storage failure")
	}
}

// CreateFlag stores a new flag.
func (s *GRPCServer) CreateFlag(ctx context.Context, req *CreateFlagRequest) (*CreateFlagResponse, error) {
	if req.Flag.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "flag name is required")
	}
	if err := s.Storage.CreateFlag(ctx, req.Flag); err != nil {
		return nil, s.toStatus("CreateFlag", err)
	}
	return &CreateFlagResponse{}, nil
}

// GetFlag retrieves a flag. A missing flag is not an error.
func (s *GRPCServer) GetFlag(ctx context.Context, req *GetFlagRequest) (*GetFlagResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "flag name is required")
	}
	env, err := flags.ParseEnvironment(req.Environment)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	flag, found, err := s.Storage.GetFlag(ctx, req.Name, env)
	if err != nil {
		return nil, s.toStatus("GetFlag", err)
	}
	return &GetFlagResponse{Flag: flag, Found: found}, nil
}

// ListFlags returns every flag.
func (s *GRPCServer) ListFlags(ctx context.Context, _ *ListFlagsRequest) (*ListFlagsResponse, error) {
	list, err := s.Storage.ListFlags(ctx)
	if err != nil {
		return nil, s.toStatus("ListFlags", err)
	}
	return &ListFlagsResponse{Flags: list}, nil
}

// UpdateFlag merges a patch into a flag.
func (s *GRPCServer) UpdateFlag(ctx context.Context, req *UpdateFlagRequest) (*UpdateFlagResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "flag name is required")
	}
	env, err := flags.ParseEnvironment(req.Environment)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	flag, err := s.Storage.UpdateFlag(ctx, req.Name, env, req.Patch)
	if err != nil {
		return nil, s.toStatus("UpdateFlag", err)
	}
	return &UpdateFlagResponse{Flag: flag}, nil
}

// DeleteFlag removes a flag from every environment.
func (s *GRPCServer) DeleteFlag(ctx context.Context, req *DeleteFlagRequest) (*DeleteFlagResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "flag name is required")
	}
	if err := s.Storage.DeleteFlag(ctx, req.Name); err != nil {
		return nil, s.toStatus("DeleteFlag", err)
	}
	return &DeleteFlagResponse{}, nil
}
