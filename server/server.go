// Package server exposes the marketplace workflows over HTTP. It is the
// surface the UI calls; rendering, routing between views and disabling
// controls while a workflow is in flight all stay on the UI side.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/Prashant-Mishra-12569/EstateETH/assetstore"
	"github.com/Prashant-Mishra-12569/EstateETH/ledger"
	"github.com/Prashant-Mishra-12569/EstateETH/market"
	"github.com/Prashant-Mishra-12569/EstateETH/wallet"
)

// maxUploadBytes bounds the multipart form held in memory per request.
const maxUploadBytes = 16 << 20

// Orchestrator is the slice of the marketplace orchestrator the server uses.
type Orchestrator interface {
	ListProperty(ctx context.Context, input market.ListingInput) (ledger.Property, error)
	BuyProperty(ctx context.Context, property ledger.Property) error
	Orphans() ([]market.PendingUpload, error)
}

// CatalogReader serves the cached property views and refreshes the
// owner-scoped slice on demand.
type CatalogReader interface {
	All() ([]ledger.Property, error)
	Mine(owner string) ([]ledger.Property, error)
	RefreshMine(ctx context.Context, owner string) error
	Get(id uint64) (ledger.Property, bool, error)
}

// WalletAPI is the wallet-session surface exposed to the UI.
type WalletAPI interface {
	CurrentAccount() (string, bool)
	Connect(ctx context.Context) (string, error)
}

// StatusChecker looks up the confirmation state of a transaction hash.
type StatusChecker interface {
	Status(ctx context.Context, hashHex string) (*ledger.Receipt, error)
}

// WebServer handles HTTP requests.
type WebServer struct {
	httpAddr     string
	server       *http.Server
	logger       cmtlog.Logger
	startTime    time.Time
	orchestrator Orchestrator
	catalog      CatalogReader
	wallet       WalletAPI
	status       StatusChecker
}

// NewWebServer creates a new web server.
func NewWebServer(httpPort string, orchestrator Orchestrator, catalog CatalogReader, walletAPI WalletAPI, status StatusChecker, logger cmtlog.Logger) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: mux,
		},
		logger:       logger,
		startTime:    time.Now(),
		orchestrator: orchestrator,
		catalog:      catalog,
		wallet:       walletAPI,
		status:       status,
	}

	mux.HandleFunc("/", ws.handleRoot)
	mux.HandleFunc("/properties", ws.handleProperties)
	mux.HandleFunc("/properties/mine", ws.handleMyProperties)
	mux.HandleFunc("/buy", ws.handleBuy)
	mux.HandleFunc("/status/", ws.handleTransactionStatus)
	mux.HandleFunc("/wallet", ws.handleWallet)
	mux.HandleFunc("/wallet/connect", ws.handleWalletConnect)
	mux.HandleFunc("/orphans", ws.handleOrphans)

	return ws
}

// Start starts the web server.
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error: ", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the web server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	account, connected := ws.wallet.CurrentAccount()
	info := map[string]interface{}{
		"service":          "property marketplace",
		"uptime":           time.Since(ws.startTime).String(),
		"wallet_connected": connected,
	}
	if connected {
		info["wallet_account"] = account
	}
	writeJSON(w, http.StatusOK, info)
}

// handleProperties serves the cached catalog on GET and runs the listing
// workflow on POST.
func (ws *WebServer) handleProperties(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		properties, err := ws.catalog.All()
		if err != nil {
			JSONError(w, "Error reading catalog: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toPropertyViews(properties))
	case http.MethodPost:
		ws.handleListProperty(w, r)
	default:
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ws *WebServer) handleMyProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		var connected bool
		owner, connected = ws.wallet.CurrentAccount()
		if !connected {
			JSONError(w, "No wallet connected and no owner given", http.StatusBadRequest)
			return
		}
	}
	// Live owner-scoped read on every view. A failed fetch is tolerated:
	// the replacement is transactional, so the last-known-good snapshot is
	// still there to serve.
	if err := ws.catalog.RefreshMine(r.Context(), owner); err != nil {
		ws.logger.Error("Owner-scoped refresh failed, serving cached view", "owner", owner, "err", err)
	}
	properties, err := ws.catalog.Mine(owner)
	if err != nil {
		JSONError(w, "Error reading catalog: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyViews(properties))
}

func (ws *WebServer) handleListProperty(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		JSONError(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	input := market.ListingInput{
		Name:         r.FormValue("name"),
		Location:     r.FormValue("location"),
		PropertyType: r.FormValue("propertyType"),
		Price:        r.FormValue("price"),
		Bedrooms:     formCount(r, "bedrooms"),
		Kitchens:     formCount(r, "kitchens"),
	}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		input.Image, err = io.ReadAll(file)
		if err != nil {
			JSONError(w, "Error reading image: "+err.Error(), http.StatusBadRequest)
			return
		}
		input.ImageMime = header.Header.Get("Content-Type")
	}

	property, err := ws.orchestrator.ListProperty(r.Context(), input)
	if err != nil {
		ws.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPropertyView(property))
}

type buyRequestBody struct {
	PropertyID uint64 `json:"property_id"`
}

func (ws *WebServer) handleBuy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body buyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		JSONError(w, "Invalid body format: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	property, ok, err := ws.catalog.Get(body.PropertyID)
	if err != nil {
		JSONError(w, "Error reading catalog: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		JSONError(w, "Property not found", http.StatusNotFound)
		return
	}

	if err := ws.orchestrator.BuyProperty(r.Context(), property); err != nil {
		ws.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Property purchased"})
}

// handleTransactionStatus returns the confirmation state of a transaction.
func (ws *WebServer) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pathParts := strings.Split(r.URL.Path, "/")
	if len(pathParts) != 3 || pathParts[1] != "status" || pathParts[2] == "" {
		JSONError(w, "Invalid transaction hash", http.StatusBadRequest)
		return
	}

	receipt, err := ws.status.Status(r.Context(), pathParts[2])
	if err != nil {
		JSONError(w, "Error checking transaction status: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	account, connected := ws.wallet.CurrentAccount()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": connected,
		"account":   account,
	})
}

func (ws *WebServer) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	account, err := ws.wallet.Connect(r.Context())
	if err != nil {
		ws.writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": true,
		"account":   account,
	})
}

func (ws *WebServer) handleOrphans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, err := ws.orchestrator.Orphans()
	if err != nil {
		JSONError(w, "Error reading upload journal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []market.PendingUpload{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeWorkflowError maps the workflow error taxonomy onto HTTP statuses.
// The error text is passed through so the UI can surface it to the user.
func (ws *WebServer) writeWorkflowError(w http.ResponseWriter, err error) {
	var (
		validationErr *market.ValidationError
		uploadErr     *assetstore.UploadError
		revertErr     *ledger.RevertError
		txFailedErr   *market.TransactionFailedError
		networkErr    *ledger.NetworkError
	)
	switch {
	case errors.As(err, &validationErr):
		JSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, wallet.ErrUserRejected):
		JSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, wallet.ErrUnavailable):
		JSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ledger.ErrNoAccount):
		JSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		JSONError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ledger.ErrAlreadySold):
		JSONError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &revertErr), errors.As(err, &txFailedErr):
		JSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &networkErr):
		JSONError(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &uploadErr):
		if uploadErr.Reason == assetstore.ReasonNetwork {
			JSONError(w, err.Error(), http.StatusBadGateway)
		} else {
			JSONError(w, err.Error(), http.StatusUnprocessableEntity)
		}
	default:
		ws.logger.Error("Workflow error", "err", err)
		JSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// propertyView is the JSON shape served to the UI; field names match the
// ledger record encoding, with the price as a smallest-unit decimal string.
type propertyView struct {
	ID           uint64 `json:"id"`
	Owner        string `json:"owner"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	Price        string `json:"price"`
	ImageHash    string `json:"imageHash"`
	Bedrooms     uint   `json:"bedrooms"`
	PropertyType string `json:"propertyType"`
	Kitchens     uint   `json:"kitchens"`
	IsSold       bool   `json:"isSold"`
}

func toPropertyView(p ledger.Property) propertyView {
	return propertyView{
		ID:           p.ID,
		Owner:        p.Owner,
		Name:         p.Name,
		Location:     p.Location,
		Price:        p.Price.String(),
		ImageHash:    p.ImageHash,
		Bedrooms:     p.Bedrooms,
		PropertyType: p.PropertyType,
		Kitchens:     p.Kitchens,
		IsSold:       p.IsSold,
	}
}

func toPropertyViews(properties []ledger.Property) []propertyView {
	views := make([]propertyView, 0, len(properties))
	for _, p := range properties {
		views = append(views, toPropertyView(p))
	}
	return views
}

func formCount(r *http.Request, field string) int {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(body)
}

// JSONError sends a JSON formatted error response with the given status code
// and message.
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, _ := json.Marshal(errorResponse)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
