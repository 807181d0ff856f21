package wallet

import (
	"context"
	"errors"
	"fmt"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	jsonrpcclient "github.com/cometbft/cometbft/rpc/jsonrpc/client"
	rpctypes "github.com/cometbft/cometbft/rpc/jsonrpc/types"
)

// EIP-1193 error code sent by signing agents when the user declines a
// prompt.
const codeUserRejected = 4001

var (
	// ErrUnavailable means no signing agent is reachable.
	ErrUnavailable = errors.New("wallet provider unavailable")

	// ErrUserRejected means the user declined the request at the signing
	// agent.
	ErrUserRejected = errors.New("user rejected request")
)

// Provider is the request surface of a signing agent. Method names follow
// the agent's wire protocol (eth_accounts, eth_requestAccounts,
// personal_sign); result is decoded into result when non-nil.
type Provider interface {
	Request(ctx context.Context, method string, params map[string]interface{}, result interface{}) error
}

// RPCProvider talks JSON-RPC to a remote signing agent.
type RPCProvider struct {
	client *jsonrpcclient.Client
	logger cmtlog.Logger
}

func NewRPCProvider(remote string, logger cmtlog.Logger) (*RPCProvider, error) {
	client, err := jsonrpcclient.New(remote)
	if err != nil {
		return nil, fmt.Errorf("creating signing agent client: %w", err)
	}
	return &RPCProvider{client: client, logger: logger}, nil
}

func (p *RPCProvider) Request(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}
	_, err := p.client.Call(ctx, method, params, result)
	if err != nil {
		return mapProviderError(err)
	}
	return nil
}

func mapProviderError(err error) error {
	var rpcErr *rpctypes.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == codeUserRejected {
			return ErrUserRejected
		}
		return err
	}
	// Anything that never reached the agent counts as no provider present.
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
