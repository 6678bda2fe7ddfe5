package externalpb

import (
	"context"

	"google.golang.org/grpc"
)

// RuntimeClient is the external runtime's gRPC surface. It is hand-written
// against grpc.ClientConnInterface.Invoke in the shape protoc-gen-go-grpc
// would otherwise generate, so the bridge stays a thin client without a
// vendored .proto toolchain.
type RuntimeClient interface {
	ExecuteCase(ctx context.Context, in *ExecuteCaseRequest, opts ...grpc.CallOption) (*ExecuteCaseResponse, error)
	FetchSchema(ctx context.Context, in *struct{}, opts ...grpc.CallOption) (*FetchSchemaResponse, error)
	FetchToolCatalog(ctx context.Context, in *struct{}, opts ...grpc.CallOption) (*FetchToolCatalogResponse, error)
}

const (
	serviceName         = "station.executor.v1.Runtime"
	methodExecuteCase   = "/" + serviceName + "/ExecuteCase"
	methodFetchSchema   = "/" + serviceName + "/FetchSchema"
	methodFetchCatalog  = "/" + serviceName + "/FetchToolCatalog"
)

type runtimeClient struct {
	cc grpc.ClientConnInterface
}

// NewRuntimeClient wraps an established connection to the external runtime.
func NewRuntimeClient(cc grpc.ClientConnInterface) RuntimeClient {
	return &runtimeClient{cc: cc}
}

func (c *runtimeClient) ExecuteCase(ctx context.Context, in *ExecuteCaseRequest, opts ...grpc.CallOption) (*ExecuteCaseResponse, error) {
	out := new(ExecuteCaseResponse)
	if err := c.cc.Invoke(ctx, methodExecuteCase, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *runtimeClient) FetchSchema(ctx context.Context, in *struct{}, opts ...grpc.CallOption) (*FetchSchemaResponse, error) {
	out := new(FetchSchemaResponse)
	if err := c.cc.Invoke(ctx, methodFetchSchema, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *runtimeClient) FetchToolCatalog(ctx context.Context, in *struct{}, opts ...grpc.CallOption) (*FetchToolCatalogResponse, error) {
	out := new(FetchToolCatalogResponse)
	if err := c.cc.Invoke(ctx, methodFetchCatalog, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
