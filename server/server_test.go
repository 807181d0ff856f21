package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/require"

	"github.com/Prashant-Mishra-12569/EstateETH/assetstore"
	"github.com/Prashant-Mishra-12569/EstateETH/ledger"
	"github.com/Prashant-Mishra-12569/EstateETH/market"
	"github.com/Prashant-Mishra-12569/EstateETH/wallet"
)

type fakeOrchestrator struct {
	listErr   error
	listed    ledger.Property
	lastInput market.ListingInput
	buyErr    error
	bought    []uint64
	orphans   []market.PendingUpload
}

func (f *fakeOrchestrator) ListProperty(_ context.Context, input market.ListingInput) (ledger.Property, error) {
	f.lastInput = input
	if f.listErr != nil {
		return ledger.Property{}, f.listErr
	}
	return f.listed, nil
}

func (f *fakeOrchestrator) BuyProperty(_ context.Context, property ledger.Property) error {
	f.bought = append(f.bought, property.ID)
	return f.buyErr
}

func (f *fakeOrchestrator) Orphans() ([]market.PendingUpload, error) {
	return f.orphans, nil
}

type fakeReader struct {
	all             []ledger.Property
	mine            map[string][]ledger.Property
	refreshedOwners []string
	refreshMineErr  error
}

func (f *fakeReader) All() ([]ledger.Property, error) { return f.all, nil }

func (f *fakeReader) Mine(owner string) ([]ledger.Property, error) { return f.mine[owner], nil }

func (f *fakeReader) RefreshMine(_ context.Context, owner string) error {
	f.refreshedOwners = append(f.refreshedOwners, owner)
	return f.refreshMineErr
}

func (f *fakeReader) Get(id uint64) (ledger.Property, bool, error) {
	for _, p := range f.all {
		if p.ID == id {
			return p, true, nil
		}
	}
	return ledger.Property{}, false, nil
}

type fakeWalletAPI struct {
	account    string
	connectErr error
}

func (f *fakeWalletAPI) CurrentAccount() (string, bool) { return f.account, f.account != "" }

func (f *fakeWalletAPI) Connect(context.Context) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	f.account = "0xnew"
	return f.account, nil
}

type fakeStatus struct {
	receipt *ledger.Receipt
}

func (f *fakeStatus) Status(context.Context, string) (*ledger.Receipt, error) {
	return f.receipt, nil
}

func testServer(orchestrator *fakeOrchestrator, reader *fakeReader, walletAPI *fakeWalletAPI, status *fakeStatus) *WebServer {
	if orchestrator == nil {
		orchestrator = &fakeOrchestrator{}
	}
	if reader == nil {
		reader = &fakeReader{}
	}
	if walletAPI == nil {
		walletAPI = &fakeWalletAPI{}
	}
	if status == nil {
		status = &fakeStatus{receipt: &ledger.Receipt{Status: ledger.StatusPending}}
	}
	return NewWebServer("5000", orchestrator, reader, walletAPI, status, cmtlog.NewNopLogger())
}

func serve(ws *WebServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ws.server.Handler.ServeHTTP(rec, req)
	return rec
}

func sampleProperty(id uint64, owner string) ledger.Property {
	return ledger.Property{
		ID:           id,
		Owner:        owner,
		Name:         "Flat",
		Location:     "Pune",
		PropertyType: "flat",
		Price:        big.NewInt(0).Mul(big.NewInt(15), big.NewInt(1e17)),
		ImageHash:    "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
		Bedrooms:     2,
		Kitchens:     1,
	}
}

func TestGetPropertiesServesCatalogViews(t *testing.T) {
	ws := testServer(nil, &fakeReader{all: []ledger.Property{sampleProperty(1, "0xaa")}}, nil, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/properties", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "1500000000000000000", views[0]["price"])
	require.Equal(t, "flat", views[0]["propertyType"])
	require.Equal(t, false, views[0]["isSold"])
}

func TestGetPropertiesEmptyCatalogIsEmptyArray(t *testing.T) {
	ws := testServer(nil, nil, nil, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/properties", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetMyPropertiesUsesConnectedWallet(t *testing.T) {
	reader := &fakeReader{mine: map[string][]ledger.Property{"0xaa": {sampleProperty(1, "0xaa")}}}
	ws := testServer(nil, reader, &fakeWalletAPI{account: "0xaa"}, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/properties/mine", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
}

func TestGetMyPropertiesRefreshesOwnerSliceFromLedger(t *testing.T) {
	// Each view triggers a live owner-scoped fetch before the cached read.
	reader := &fakeReader{mine: map[string][]ledger.Property{"0xaa": {sampleProperty(1, "0xaa")}}}
	ws := testServer(nil, reader, &fakeWalletAPI{account: "0xaa"}, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/properties/mine", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"0xaa"}, reader.refreshedOwners)

	rec = serve(ws, httptest.NewRequest(http.MethodGet, "/properties/mine?owner=0xbb", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"0xaa", "0xbb"}, reader.refreshedOwners)
}

func TestGetMyPropertiesServesSnapshotWhenRefreshFails(t *testing.T) {
	reader := &fakeReader{
		mine:           map[string][]ledger.Property{"0xaa": {sampleProperty(1, "0xaa")}},
		refreshMineErr: errors.New("ledger unreachable"),
	}
	ws := testServer(nil, reader, &fakeWalletAPI{account: "0xaa"}, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/properties/mine", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
}

func TestGetMyPropertiesWithoutWalletOrOwnerFails(t *testing.T) {
	ws := testServer(nil, nil, nil, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/properties/mine", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func listingRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "villa.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/properties", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestPostPropertiesRunsListingWorkflow(t *testing.T) {
	orchestrator := &fakeOrchestrator{listed: sampleProperty(9, "0xaa")}
	ws := testServer(orchestrator, nil, nil, nil)

	req := listingRequest(t, map[string]string{
		"name":         "Villa",
		"location":     "Goa",
		"propertyType": "villa",
		"price":        "1.5",
		"bedrooms":     "3",
		"kitchens":     "1",
	}, []byte("jpeg bytes"))

	rec := serve(ws, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Equal(t, "Villa", orchestrator.lastInput.Name)
	require.Equal(t, "1.5", orchestrator.lastInput.Price)
	require.Equal(t, 3, orchestrator.lastInput.Bedrooms)
	require.Equal(t, []byte("jpeg bytes"), orchestrator.lastInput.Image)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, float64(9), view["id"])
}

func TestPostBuyLooksUpPropertyAndBuys(t *testing.T) {
	orchestrator := &fakeOrchestrator{}
	reader := &fakeReader{all: []ledger.Property{sampleProperty(3, "0xbb")}}
	ws := testServer(orchestrator, reader, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/buy", strings.NewReader(`{"property_id":3}`))
	rec := serve(ws, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []uint64{3}, orchestrator.bought)
}

func TestPostBuyUnknownPropertyIs404(t *testing.T) {
	ws := testServer(nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/buy", strings.NewReader(`{"property_id":99}`))
	rec := serve(ws, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &market.ValidationError{Field: "price", Reason: "bad"}, http.StatusBadRequest},
		{"user rejected", wallet.ErrUserRejected, http.StatusConflict},
		{"wallet unavailable", fmt.Errorf("%w: dial failed", wallet.ErrUnavailable), http.StatusServiceUnavailable},
		{"no account", ledger.ErrNoAccount, http.StatusConflict},
		{"insufficient funds", ledger.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"already sold", ledger.ErrAlreadySold, http.StatusConflict},
		{"revert", &ledger.RevertError{Reason: "bad signature"}, http.StatusUnprocessableEntity},
		{"tx failed", &market.TransactionFailedError{Hash: "ab", Reason: "out of gas"}, http.StatusUnprocessableEntity},
		{"ledger network", &ledger.NetworkError{Op: "broadcast", Err: errors.New("refused")}, http.StatusBadGateway},
		{"upload network", &assetstore.UploadError{Reason: assetstore.ReasonNetwork, Err: errors.New("refused")}, http.StatusBadGateway},
		{"upload auth", &assetstore.UploadError{Reason: assetstore.ReasonAuth, Err: errors.New("401")}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orchestrator := &fakeOrchestrator{buyErr: tc.err}
			reader := &fakeReader{all: []ledger.Property{sampleProperty(3, "0xbb")}}
			ws := testServer(orchestrator, reader, nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/buy", strings.NewReader(`{"property_id":3}`))
			rec := serve(ws, req)
			require.Equal(t, tc.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestTransactionStatusEndpoint(t *testing.T) {
	status := &fakeStatus{receipt: &ledger.Receipt{Status: ledger.StatusConfirmed, Height: 42, PropertyID: 9}}
	ws := testServer(nil, nil, nil, status)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/status/abcd", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt ledger.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	require.Equal(t, ledger.StatusConfirmed, receipt.Status)
	require.Equal(t, int64(42), receipt.Height)
}

func TestTransactionStatusRequiresHash(t *testing.T) {
	ws := testServer(nil, nil, nil, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/status/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletEndpoints(t *testing.T) {
	walletAPI := &fakeWalletAPI{}
	ws := testServer(nil, nil, walletAPI, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Equal(t, false, state["connected"])

	rec = serve(ws, httptest.NewRequest(http.MethodPost, "/wallet/connect", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Equal(t, true, state["connected"])
	require.Equal(t, "0xnew", state["account"])
}

func TestWalletConnectRejectionIsConflict(t *testing.T) {
	walletAPI := &fakeWalletAPI{connectErr: wallet.ErrUserRejected}
	ws := testServer(nil, nil, walletAPI, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodPost, "/wallet/connect", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestOrphansEndpoint(t *testing.T) {
	orchestrator := &fakeOrchestrator{orphans: []market.PendingUpload{{Ref: "Qm1", Orphaned: true, Reason: "out of gas"}}}
	ws := testServer(orchestrator, nil, nil, nil)

	rec := serve(ws, httptest.NewRequest(http.MethodGet, "/orphans", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []market.PendingUpload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.True(t, entries[0].Orphaned)
}

func TestFormCountParsesNonNegativeIntegers(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"3", 3},
		{" 12 ", 12},
		{"-1", -1},
		{"abc", -1},
		{"1.5", -1},
		{"9999999999999999999999999", -1}, // would overflow int
	}
	for _, tc := range cases {
		form := url.Values{"bedrooms": {tc.in}}
		req := httptest.NewRequest(http.MethodPost, "/properties", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.Equal(t, tc.want, formCount(req, "bedrooms"), tc.in)
	}
}
