package grpc_client

import (
	"context"
	"fmt"
	"time"

	catalogv1 "github.com/xiebiao/saga-commerce/proto/catalogv1"
	"github.com/xiebiao/saga-commerce/pkg/circuitbreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// CatalogClient是create_order用例读价格/标题用的只读查询通道，不走saga——
// 按§2数据流只有saga步骤命令才经outbox/inbox异步投递，参与方的同步查询
// 仍然是直接gRPC调用。查询路径挂着熔断器：catalog-service不可用时下单请求
// 应该快速失败，而不是每次都排队等到RPC超时才知道查不到价格。
type CatalogClient struct {
	conn   *grpc.ClientConn
	client catalogv1.CatalogServiceClient
	cb     *circuitbreaker.CircuitBreaker
}

// NewCatalogClient建立一条长连接；不要在每次下单请求里Dial。
func NewCatalogClient(addr string) (*CatalogClient, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("连接catalog-service失败: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("catalog-service", circuitbreaker.Config{
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &CatalogClient{
		conn:   conn,
		client: catalogv1.NewCatalogServiceClient(conn),
		cb:     cb,
	}, nil
}

func (c *CatalogClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// GetBook查询单本图书的当前价格和标题,用于下单时按BookID逐条校验。
func (c *CatalogClient) GetBook(ctx context.Context, bookID uint, timeout time.Duration) (*catalogv1.GetBookResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *catalogv1.GetBookResponse
	err := c.cb.Execute(func() error {
		var rpcErr error
		resp, rpcErr = c.client.GetBook(ctx, &catalogv1.GetBookRequest{BookId: uint64(bookID)})
		return rpcErr
	})
	if err != nil {
		if err == circuitbreaker.ErrOpenState {
			return nil, fmt.Errorf("catalog-service熔断中，拒绝查询图书: %w", err)
		}
		return nil, fmt.Errorf("查询图书RPC调用失败: %w", err)
	}
	return resp, nil
}

// BatchGetBooks一次性查询一个订单里出现的所有图书,避免N次RPC往返。
func (c *CatalogClient) BatchGetBooks(ctx context.Context, bookIDs []uint, timeout time.Duration) (*catalogv1.BatchGetBooksResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ids := make([]uint64, len(bookIDs))
	for i, id := range bookIDs {
		ids[i] = uint64(id)
	}

	var resp *catalogv1.BatchGetBooksResponse
	err := c.cb.Execute(func() error {
		var rpcErr error
		resp, rpcErr = c.client.BatchGetBooks(ctx, &catalogv1.BatchGetBooksRequest{BookIds: ids})
		return rpcErr
	})
	if err != nil {
		if err == circuitbreaker.ErrOpenState {
			return nil, fmt.Errorf("catalog-service熔断中，拒绝批量查询图书: %w", err)
		}
		return nil, fmt.Errorf("批量查询图书RPC调用失败: %w", err)
	}
	return resp, nil
}
