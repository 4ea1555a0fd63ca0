package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "ledger.AccountService"

	getAccountMethod    = "/ledger.AccountService/GetAccount"
	addAmountMethod     = "/ledger.AccountService/AddAmount"
	countAccountsMethod = "/ledger.AccountService/CountAccounts"
)

type GetAccountRequest struct {
	ID int64 `json:"id"`
}

type AddAmountRequest struct {
	ID     int64 `json:"id"`
	Amount int64 `json:"amount"`
}

type AccountReply struct {
	ID        int64 `json:"id"`
	Available int64 `json:"available"`
	Version   int64 `json:"version"`
}

type CountAccountsRequest struct{}

type CountAccountsReply struct {
	Count int64 `json:"count"`
}

// AccountServiceServer 是 ledger.AccountService 的伺服端介面
type AccountServiceServer interface {
	GetAccount(ctx context.Context, req *GetAccountRequest) (*AccountReply, error)
	AddAmount(ctx context.Context, req *AddAmountRequest) (*AccountReply, error)
	CountAccounts(ctx context.Context, req *CountAccountsRequest) (*CountAccountsReply, error)
}

// AccountServiceDesc 手寫的服務描述，等同 protoc-gen-go-grpc 的產出
var AccountServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAccount", Handler: getAccountHandler},
		{MethodName: "AddAmount", Handler: addAmountHandler},
		{MethodName: "CountAccounts", Handler: countAccountsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/account.json",
}

// RegisterAccountServiceServer 註冊服務
func RegisterAccountServiceServer(s grpc.ServiceRegistrar, srv AccountServiceServer) {
	s.RegisterService(&AccountServiceDesc, srv)
}

func getAccountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).GetAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getAccountMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).GetAccount(ctx, req.(*GetAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func addAmountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AddAmountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).AddAmount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: addAmountMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).AddAmount(ctx, req.(*AddAmountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func countAccountsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CountAccountsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccountServiceServer).CountAccounts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: countAccountsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AccountServiceServer).CountAccounts(ctx, req.(*CountAccountsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AccountClient ledger.AccountService 的客戶端；每次呼叫都以 JSON codec 編碼
type AccountClient struct {
	cc grpc.ClientConnInterface
}

func NewAccountClient(cc grpc.ClientConnInterface) *AccountClient {
	return &AccountClient{cc: cc}
}

func (c *AccountClient) GetAccount(ctx context.Context, id int64, opts ...grpc.CallOption) (*AccountReply, error) {
	out := new(AccountReply)
	err := c.cc.Invoke(ctx, getAccountMethod, &GetAccountRequest{ID: id}, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AccountClient) AddAmount(ctx context.Context, id, amount int64, opts ...grpc.CallOption) (*AccountReply, error) {
	out := new(AccountReply)
	err := c.cc.Invoke(ctx, addAmountMethod, &AddAmountRequest{ID: id, Amount: amount}, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AccountClient) CountAccounts(ctx context.Context, opts ...grpc.CallOption) (*CountAccountsReply, error) {
	out := new(CountAccountsReply)
	err := c.cc.Invoke(ctx, countAccountsMethod, &CountAccountsRequest{}, out, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
