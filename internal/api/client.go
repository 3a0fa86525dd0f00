package api

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

// Client implements flags.Storage against a remote flag service.
type Client struct {
	cc grpc.ClientConnInterface
}

var _ flags.Storage = (*Client)(nil)

// NewClient returns a Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(codecName))
}

// fromStatus turns flag-service status codes back into flag errors.
func fromStatus(name string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.AlreadyExists:
		return &flags.DuplicateFlagError{Name: name}
	case codes.NotFound:
		return &flags.FlagNotFoundError{Name: name}
	case codes.InvalidArgument:
		if strings.Contains(st.Message(), flags.ErrUnknownEnvironment.Error()) {
			return fmt.Errorf("%w: %s", flags.ErrUnknownEnvironment, st.Message())
		}
	}
	return err
}

func (c *Client) CreateFlag(ctx context.Context, flag flags.Flag) error {
	err := c.invoke(ctx, "CreateFlag", &CreateFlagRequest{Flag: flag}, &CreateFlagResponse{})
	if err != nil {
		return fromStatus(flag.Name, err)
	}
	return nil
}

func (c *Client) GetFlag(ctx context.Context, name string, env flags.Environment) (flags.Flag, bool, error) {
	resp := &GetFlagResponse{}
	err := c.invoke(ctx, "GetFlag", &GetFlagRequest{Name: name, Environment: string(env)}, resp)
	if err != nil {
		return flags.Flag{}, false, fromStatus(name, err)
	}
	if !resp.Found {
		return flags.Flag{}, false, nil
	}
	return resp.Flag, true, nil
}

func (c *Client) ListFlags(ctx context.Context) ([]flags.Flag, error) {
	resp := &ListFlagsResponse{}
	if err := c.invoke(ctx, "ListFlags", &ListFlagsRequest{}, resp); err != nil {
		return nil, fromStatus("", err)
	}
	if resp.Flags == nil {
		resp.Flags = []flags.Flag{}
	}
	return resp.Flags, nil
}

func (c *Client) UpdateFlag(ctx context.Context, name string, env flags.Environment, patch flags.Patch) (flags.Flag, error) {
	resp := &UpdateFlagResponse{}
	req := &UpdateFlagRequest{Name: name, Environment: string(env), Patch: patch}
	if err := c.invoke(ctx, "UpdateFlag", req, resp); err != nil {
		return flags.Flag{}, fromStatus(name, err)
	}
	return resp.Flag, nil
}

func (c *Client) DeleteFlag(ctx context.Context, name string) error {
	err := c.invoke(ctx, "DeleteFlag", &DeleteFlagRequest{Name: name}, &DeleteFlagResponse{})
	if err != nil {
		return fromStatus(name, err)
	}
	return nil
}
