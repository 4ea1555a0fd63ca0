package grpc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Pool 讓同一行程內的所有呼叫共用每個目標地址的連線。
// 每個目標另外快取一個由 newClient 建立的型別化客戶端 (例如 *AccountClient)，
// 並發的 worker 會拿到同一個實例。
type Pool[C any] struct {
	newClient func(grpc.ClientConnInterface) C
	dialOpts  []grpc.DialOption

	mu      sync.Mutex
	entries map[string]*entry[C]
	closed  bool
}

type entry[C any] struct {
	conn   *grpc.ClientConn
	client C
}

// Option 設定 Pool 建立連線時使用的 DialOption
type Option func(*options)

type options struct {
	dialOpts     []grpc.DialOption
	interceptors []grpc.UnaryClientInterceptor
}

// WithDialOptions 附加每條連線都會套用的 DialOption (例如測試用的 bufconn dialer)
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// WithInterceptors 依序串接 UnaryClientInterceptor
func WithInterceptors(interceptors ...grpc.UnaryClientInterceptor) Option {
	return func(o *options) {
		o.interceptors = append(o.interceptors, interceptors...)
	}
}

// ErrPoolClosed Close 之後再取用連線
var ErrPoolClosed = errors.New("grpc pool closed")

// NewPool 建立連線池，newClient 決定每個目標快取的客戶端型別
func NewPool[C any](newClient func(grpc.ClientConnInterface) C, opts ...Option) *Pool[C] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// 內部服務走私有網路，不加 TLS
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             time.Second,
			PermitWithoutStream: true,
		}),
	}
	if len(o.interceptors) > 0 {
		dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(o.interceptors...))
	}
	dialOpts = append(dialOpts, o.dialOpts...)

	return &Pool[C]{
		newClient: newClient,
		dialOpts:  dialOpts,
		entries:   make(map[string]*entry[C]),
	}
}

// Client 回傳 target 的共用客戶端，必要時建立連線。
// 已被關閉 (Shutdown) 的連線會被替換。
func (p *Pool[C]) Client(target string) (C, error) {
	e, err := p.get(target)
	if err != nil {
		var zero C
		return zero, err
	}
	return e.client, nil
}

// Conn 回傳 target 的共用連線
func (p *Pool[C]) Conn(target string) (*grpc.ClientConn, error) {
	e, err := p.get(target)
	if err != nil {
		return nil, err
	}
	return e.conn, nil
}

func (p *Pool[C]) get(target string) (*entry[C], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if e, ok := p.entries[target]; ok {
		if e.conn.GetState() != connectivity.Shutdown {
			return e, nil
		}
		delete(p.entries, target)
	}

	// grpc.NewClient 不會立即撥號，第一次呼叫時才連線，持鎖建立不會卡住其他目標太久
	conn, err := grpc.NewClient(target, p.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for target %s: %w", target, err)
	}
	e := &entry[C]{conn: conn, client: p.newClient(conn)}
	p.entries[target] = e
	return e, nil
}

// Len 目前持有的目標數
func (p *Pool[C]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close 關閉所有連線，之後的 Client/Conn 會回傳 ErrPoolClosed
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for target, e := range p.entries {
		if err := e.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", target, err))
		}
		delete(p.entries, target)
	}
	p.closed = true
	return errors.Join(errs...)
}
