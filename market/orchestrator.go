// Package market implements the listing and purchase workflows end to end:
// upload asset, submit transaction, wait for confirmation, refresh the local
// view. It coordinates three independently failing externals and makes their
// partial-failure states explicit instead of hiding them in control flow.
package market

import (
	"context"
	"fmt"
	"math/big"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/Prashant-Mishra-12569/EstateETH/ledger"
)

// ValidationError rejects an input field before any external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransactionFailedError means the transaction was broadcast but the ledger
// did not accept it.
type TransactionFailedError struct {
	Hash   string
	Reason string
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.Reason)
}

// AssetStore uploads image payloads and returns content references.
type AssetStore interface {
	Upload(ctx context.Context, data []byte, mimeHint string) (string, error)
}

// Gateway is the ledger write path plus confirmation wait.
type Gateway interface {
	SubmitList(ctx context.Context, fields ledger.ListingFields) (*ledger.TxHandle, error)
	SubmitBuy(ctx context.Context, propertyID uint64, price *big.Int) (*ledger.TxHandle, error)
	Wait(ctx context.Context, handle *ledger.TxHandle) (*ledger.Receipt, error)
}

// Catalog is the local view the orchestrator refreshes after confirmations.
type Catalog interface {
	Refresh(ctx context.Context) error
	Get(id uint64) (ledger.Property, bool, error)
}

// Wallet exposes the connected account, used to attribute journal entries.
type Wallet interface {
	CurrentAccount() (string, bool)
}

// ListingInput is the user-entered form for listing a property. Price is the
// human decimal amount; conversion to smallest units happens here, before
// submission.
type ListingInput struct {
	Name         string
	Location     string
	PropertyType string
	Price        string
	Bedrooms     int
	Kitchens     int
	Image        []byte
	ImageMime    string
}

// Orchestrator composes the asset store, gateway, catalog and wallet into
// the two marketplace use cases. It holds no concurrency guard: serializing
// user-triggered actions is the caller's job, and a submitted transaction
// cannot be cancelled.
type Orchestrator struct {
	assets  AssetStore
	gateway Gateway
	catalog Catalog
	wallet  Wallet
	journal *Journal
	logger  cmtlog.Logger
}

func NewOrchestrator(assets AssetStore, gateway Gateway, catalog Catalog, wallet Wallet, journal *Journal, logger cmtlog.Logger) *Orchestrator {
	return &Orchestrator{
		assets:  assets,
		gateway: gateway,
		catalog: catalog,
		wallet:  wallet,
		journal: journal,
		logger:  logger,
	}
}

func validateListing(input ListingInput) (*big.Int, error) {
	if input.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if input.Location == "" {
		return nil, &ValidationError{Field: "location", Reason: "must not be empty"}
	}
	if input.PropertyType == "" {
		return nil, &ValidationError{Field: "propertyType", Reason: "must not be empty"}
	}
	price, err := ParsePrice(input.Price)
	if err != nil {
		return nil, &ValidationError{Field: "price", Reason: err.Error()}
	}
	if input.Bedrooms < 0 {
		return nil, &ValidationError{Field: "bedrooms", Reason: "must be a non-negative integer"}
	}
	if input.Kitchens < 0 {
		return nil, &ValidationError{Field: "kitchens", Reason: "must be a non-negative integer"}
	}
	if len(input.Image) == 0 {
		return nil, &ValidationError{Field: "image", Reason: "image payload is required"}
	}
	return price, nil
}

// ListProperty runs the full listing workflow. Validation failures happen
// before any external call, so they have no side effects. An upload that
// succeeds but is followed by a failed submission or a failed transaction is
// left pinned: the asset becomes an orphaned upload, journaled for
// inspection rather than retracted.
func (o *Orchestrator) ListProperty(ctx context.Context, input ListingInput) (ledger.Property, error) {
	price, err := validateListing(input)
	if err != nil {
		return ledger.Property{}, err
	}

	ref, err := o.assets.Upload(ctx, input.Image, input.ImageMime)
	if err != nil {
		// Nothing was submitted; the workflow aborts cleanly.
		return ledger.Property{}, err
	}

	owner, _ := o.wallet.CurrentAccount()
	if err := o.journal.Record(PendingUpload{Ref: ref, Name: input.Name, Owner: owner}); err != nil {
		o.logger.Error("Failed to journal pending upload", "ref", ref, "err", err)
	}

	handle, err := o.gateway.SubmitList(ctx, ledger.ListingFields{
		Name:         input.Name,
		Location:     input.Location,
		Price:        price,
		ImageHash:    ref,
		Bedrooms:     uint(input.Bedrooms),
		PropertyType: input.PropertyType,
		Kitchens:     uint(input.Kitchens),
	})
	if err != nil {
		o.orphan(ref, "", err.Error())
		return ledger.Property{}, err
	}

	receipt, err := o.gateway.Wait(ctx, handle)
	if err != nil {
		return ledger.Property{}, err
	}
	if receipt.Status != ledger.StatusConfirmed {
		o.orphan(ref, handle.Hash, receipt.Reason)
		return ledger.Property{}, &TransactionFailedError{Hash: handle.Hash, Reason: receipt.Reason}
	}

	if err := o.journal.Clear(ref); err != nil {
		o.logger.Error("Failed to clear upload journal entry", "ref", ref, "err", err)
	}
	if err := o.catalog.Refresh(ctx); err != nil {
		return ledger.Property{}, err
	}

	property, ok, err := o.catalog.Get(receipt.PropertyID)
	if err != nil {
		return ledger.Property{}, err
	}
	if !ok {
		return ledger.Property{}, fmt.Errorf("confirmed property %d missing from refreshed catalog", receipt.PropertyID)
	}
	o.logger.Info("Property listed", "id", property.ID, "tx", handle.Hash)
	return property, nil
}

// BuyProperty submits a purchase paying exactly the listed price and
// refreshes the catalog once the ledger confirms. On any failure the cache
// is left untouched: the old unsold state stands until a future successful
// refresh proves otherwise.
func (o *Orchestrator) BuyProperty(ctx context.Context, property ledger.Property) error {
	handle, err := o.gateway.SubmitBuy(ctx, property.ID, property.Price)
	if err != nil {
		return err
	}

	receipt, err := o.gateway.Wait(ctx, handle)
	if err != nil {
		return err
	}
	if receipt.Status != ledger.StatusConfirmed {
		return &TransactionFailedError{Hash: handle.Hash, Reason: receipt.Reason}
	}

	o.logger.Info("Property purchased", "id", property.ID, "tx", handle.Hash)
	return o.catalog.Refresh(ctx)
}

// Orphans lists journaled uploads, including assets stranded by failed
// listing transactions.
func (o *Orchestrator) Orphans() ([]PendingUpload, error) {
	return o.journal.List()
}

func (o *Orchestrator) orphan(ref, txHash, reason string) {
	if err := o.journal.MarkOrphaned(ref, txHash, reason); err != nil {
		o.logger.Error("Failed to mark upload orphaned", "ref", ref, "err", err)
	}
}
