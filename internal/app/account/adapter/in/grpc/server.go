package grpc

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/domain"
	"github.com/JoeShih716/go-versioned-ledger/internal/app/account/usecase"
)

type GrpcServer struct {
	svc    *usecase.AccountService
	logger *zap.Logger
}

func NewGrpcServer(svc *usecase.AccountService, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		svc:    svc,
		logger: logger,
	}
}

// NewServer 建立掛好攔截器、帳戶服務與 health check 的 *grpc.Server
func NewServer(svc *usecase.AccountService, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)

	RegisterAccountServiceServer(s, NewGrpcServer(svc, logger))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *GetAccountRequest) (*AccountReply, error) {
	account, err := s.svc.Read(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReply(account), nil
}

func (s *GrpcServer) AddAmount(ctx context.Context, req *AddAmountRequest) (*AccountReply, error) {
	account, err := s.svc.Write(ctx, req.ID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReply(account), nil
}

func (s *GrpcServer) CountAccounts(ctx context.Context, _ *CountAccountsRequest) (*CountAccountsReply, error) {
	n, err := s.svc.Count(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CountAccountsReply{Count: n}, nil
}

func toReply(a domain.Account) *AccountReply {
	return &AccountReply{ID: a.ID, Available: a.Available, Version: a.Version}
}

// toStatus 將 domain 錯誤轉成 gRPC 狀態碼
func toStatus(err error) error {
	switch {
	// 已提交的寫入不可回報成可重試的 Unavailable
	case errors.Is(err, domain.ErrCommittedNotCached):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrInvalidVersion), errors.Is(err, domain.ErrInvalidAccountID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrOptimisticLockExhausted):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrTransientStore), errors.Is(err, domain.ErrTransientCache):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var _ AccountServiceServer = (*GrpcServer)(nil)
