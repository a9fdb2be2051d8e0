// Package chain connects the core to the FlipMatch contract: network table,
// wallet session, contract handles and transaction confirmation.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var _ Backend = (*EthClient)(nil)

// Backend is the node surface a contract handle needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Dialer opens a Backend for an RPC endpoint.
type Dialer func(ctx context.Context, url string) (Backend, error)

// EthClient is an ethclient dialed over a pooled HTTP transport.
type EthClient struct {
	*ethclient.Client
}

// newHTTPClient pools connections to the RPC endpoint; discovery fans out
// many concurrent reads to the same host.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     30 * time.Second,
		MaxConnsPerHost:     100,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   15 * time.Second,
	}
}

// Dial connects to url.
func Dial(ctx context.Context, url string) (*EthClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(newHTTPClient()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rpc client: %w", err)
	}
	return &EthClient{ethclient.NewClient(rpcClient)}, nil
}

// DialBackend is the default Dialer.
func DialBackend(ctx context.Context, url string) (Backend, error) {
	c, err := Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}
