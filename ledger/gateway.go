package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	rpctypes "github.com/cometbft/cometbft/rpc/jsonrpc/types"
	cmttypes "github.com/cometbft/cometbft/types"
)

// Contract result codes, shared convention with the property contract.
const (
	CodeOK                uint32 = 0
	CodeInvalidTx         uint32 = 1
	CodeInsufficientFunds uint32 = 2
	CodeAlreadySold       uint32 = 3
)

// ABCI query paths served by the property contract.
const (
	queryAllProperties   = "/properties"
	queryOwnerProperties = "/properties/owner"
)

// Event emitted by the contract when a listing is assigned its id.
const (
	eventPropertyListed = "property_listed"
	attrPropertyID      = "id"
)

// TxKind distinguishes the two write operations.
type TxKind string

const (
	TxList TxKind = "list"
	TxBuy  TxKind = "buy"
)

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// TxHandle tracks one in-flight write. Each submit produces a fresh handle;
// terminal states are never left.
type TxHandle struct {
	Hash       string   `json:"hash"`
	Kind       TxKind   `json:"kind"`
	PropertyID uint64   `json:"property_id,omitempty"` // unknown until mined for list
	Status     TxStatus `json:"status"`
}

// Receipt is the terminal result of waiting on a transaction.
type Receipt struct {
	Status     TxStatus `json:"status"`
	Height     int64    `json:"height"`
	PropertyID uint64   `json:"property_id,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// ListingFields is the argument set of the contract's listProperty method.
// Price must already be in the ledger's smallest unit.
type ListingFields struct {
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	Price        *big.Int `json:"-"`
	ImageHash    string   `json:"imageHash"`
	Bedrooms     uint     `json:"bedrooms"`
	PropertyType string   `json:"propertyType"`
	Kitchens     uint     `json:"kitchens"`
}

// Signer provides the identity and signature for ledger writes. The wallet
// session implements it.
type Signer interface {
	Address() (string, bool)
	Sign(ctx context.Context, from string, data []byte) ([]byte, error)
}

// RPCClient is the slice of the CometBFT RPC client the gateway uses.
type RPCClient interface {
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error)
	BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTx, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*cmtrpctypes.ResultTx, error)
}

// Gateway reads property records from the ledger and submits signed write
// transactions, tracking their confirmation lifecycle.
type Gateway struct {
	rpc          RPCClient
	signer       Signer
	logger       cmtlog.Logger
	pollInterval time.Duration
}

func NewGateway(rpc RPCClient, signer Signer, logger cmtlog.Logger) *Gateway {
	return &Gateway{
		rpc:          rpc,
		signer:       signer,
		logger:       logger,
		pollInterval: time.Second,
	}
}

// FetchAll reads every listed property from the ledger. An absent or null
// result is valid empty state, not an error.
func (g *Gateway) FetchAll(ctx context.Context) ([]Property, error) {
	res, err := g.rpc.ABCIQuery(ctx, queryAllProperties, nil)
	if err != nil {
		return nil, &NetworkError{Op: "fetch all properties", Err: err}
	}
	if res.Response.Code != CodeOK {
		return nil, &NetworkError{Op: "fetch all properties", Err: fmt.Errorf("query code %d: %s", res.Response.Code, res.Response.Log)}
	}
	return decodeProperties(res.Response.Value)
}

// FetchMine reads the properties currently owned by owner. The empty-result
// normalization applies here exactly as in FetchAll.
func (g *Gateway) FetchMine(ctx context.Context, owner string) ([]Property, error) {
	res, err := g.rpc.ABCIQuery(ctx, queryOwnerProperties, cmtbytes.HexBytes(owner))
	if err != nil {
		return nil, &NetworkError{Op: "fetch owner properties", Err: err}
	}
	if res.Response.Code != CodeOK {
		return nil, &NetworkError{Op: "fetch owner properties", Err: fmt.Errorf("query code %d: %s", res.Response.Code, res.Response.Log)}
	}
	return decodeProperties(res.Response.Value)
}

func decodeProperties(value []byte) ([]Property, error) {
	if len(value) == 0 || string(value) == "null" {
		return []Property{}, nil
	}
	var raws []RawProperty
	if err := json.Unmarshal(value, &raws); err != nil {
		return nil, &ParseError{Field: "records", Reason: err.Error()}
	}
	properties := make([]Property, 0, len(raws))
	for _, raw := range raws {
		property, err := ParseProperty(raw)
		if err != nil {
			return nil, err
		}
		properties = append(properties, property)
	}
	return properties, nil
}

type txEnvelope struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type listPayload struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	Price        string `json:"price"`
	ImageHash    string `json:"imageHash"`
	Bedrooms     uint   `json:"bedrooms"`
	PropertyType string `json:"propertyType"`
	Kitchens     uint   `json:"kitchens"`
}

type buyPayload struct {
	ID      uint64 `json:"id"`
	Payment string `json:"payment"`
}

// SubmitList broadcasts a listProperty transaction. The signer's decline
// propagates unchanged; nothing is broadcast in that case.
func (g *Gateway) SubmitList(ctx context.Context, fields ListingFields) (*TxHandle, error) {
	payload, err := json.Marshal(listPayload{
		Name:         fields.Name,
		Location:     fields.Location,
		Price:        fields.Price.String(),
		ImageHash:    fields.ImageHash,
		Bedrooms:     fields.Bedrooms,
		PropertyType: fields.PropertyType,
		Kitchens:     fields.Kitchens,
	})
	if err != nil {
		return nil, err
	}
	return g.submit(ctx, "list_property", TxList, payload)
}

// SubmitBuy broadcasts a buyProperty transaction paying exactly price.
func (g *Gateway) SubmitBuy(ctx context.Context, propertyID uint64, price *big.Int) (*TxHandle, error) {
	payload, err := json.Marshal(buyPayload{ID: propertyID, Payment: price.String()})
	if err != nil {
		return nil, err
	}
	return g.submit(ctx, "buy_property", TxBuy, payload)
}

func (g *Gateway) submit(ctx context.Context, txType string, kind TxKind, payload json.RawMessage) (*TxHandle, error) {
	from, ok := g.signer.Address()
	if !ok {
		return nil, ErrNoAccount
	}

	signature, err := g.signer.Sign(ctx, from, payload)
	if err != nil {
		return nil, err
	}

	txBytes, err := json.Marshal(txEnvelope{
		Type:      txType,
		From:      from,
		Payload:   payload,
		Signature: hex.EncodeToString(signature),
	})
	if err != nil {
		return nil, err
	}

	res, err := g.rpc.BroadcastTxSync(ctx, cmttypes.Tx(txBytes))
	if err != nil {
		return nil, &NetworkError{Op: "broadcast", Err: err}
	}
	if res.Code != CodeOK {
		return nil, mapResultCode(res.Code, res.Log)
	}

	hash := hex.EncodeToString(res.Hash)
	g.logger.Info("Transaction broadcast", "type", txType, "hash", hash)
	return &TxHandle{Hash: hash, Kind: kind, Status: StatusPending}, nil
}

// Wait suspends until the transaction is mined and returns its terminal
// receipt. There is no internal deadline: if the network stalls, Wait stalls
// with it. Callers needing a bound must cancel ctx themselves.
func (g *Gateway) Wait(ctx context.Context, handle *TxHandle) (*Receipt, error) {
	hash, err := hex.DecodeString(handle.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hash %q: %w", handle.Hash, err)
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		res, err := g.rpc.Tx(ctx, hash, false)
		if err == nil {
			return g.receiptFrom(handle, res), nil
		}
		// Not yet indexed, or a transient RPC failure. Keep polling until
		// the transaction appears or the context is cancelled.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Status is a single non-blocking confirmation check for a transaction hash.
// A transaction the ledger has not indexed yet reports as pending; an
// unreachable ledger is a NetworkError, not a pending state.
func (g *Gateway) Status(ctx context.Context, hashHex string) (*Receipt, error) {
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction hash %q: %w", hashHex, err)
	}
	res, err := g.rpc.Tx(ctx, hash, false)
	if err != nil {
		// An RPC error means the ledger answered and does not know the
		// transaction yet. Anything else never reached the ledger.
		var rpcErr *rpctypes.RPCError
		if errors.As(err, &rpcErr) {
			return &Receipt{Status: StatusPending}, nil
		}
		return nil, &NetworkError{Op: "transaction status", Err: err}
	}
	handle := &TxHandle{Hash: hashHex, Status: StatusPending}
	return g.receiptFrom(handle, res), nil
}

func (g *Gateway) receiptFrom(handle *TxHandle, res *cmtrpctypes.ResultTx) *Receipt {
	if res.TxResult.Code != CodeOK {
		handle.Status = StatusFailed
		reason := res.TxResult.Log
		g.logger.Info("Transaction failed", "hash", handle.Hash, "code", res.TxResult.Code, "reason", reason)
		return &Receipt{Status: StatusFailed, Height: res.Height, Reason: reason}
	}

	receipt := &Receipt{Status: StatusConfirmed, Height: res.Height}
	for _, event := range res.TxResult.Events {
		if event.Type != eventPropertyListed {
			continue
		}
		for _, attr := range event.Attributes {
			if attr.Key != attrPropertyID {
				continue
			}
			if id, err := strconv.ParseUint(attr.Value, 10, 64); err == nil {
				receipt.PropertyID = id
			}
		}
	}

	handle.Status = StatusConfirmed
	handle.PropertyID = receipt.PropertyID
	g.logger.Info("Transaction confirmed", "hash", handle.Hash, "height", res.Height)
	return receipt
}

func mapResultCode(code uint32, log string) error {
	switch code {
	case CodeInsufficientFunds:
		return ErrInsufficientFunds
	case CodeAlreadySold:
		return ErrAlreadySold
	default:
		if log == "" {
			log = fmt.Sprintf("code %d", code)
		}
		return &RevertError{Reason: log}
	}
}
