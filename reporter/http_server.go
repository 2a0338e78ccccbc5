// This is a http type of reporter.
// It drives the issuer and publishes issuances, balances and
// transactions on the http routes.

package reporter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/common"
	"github.com/TEENet-io/splminter-go/issuancedb"
	"github.com/TEENet-io/splminter-go/issuer"
	"github.com/TEENet-io/splminter-go/metrics"
)

const (
	ROUTE_HEALTH       = "/health"
	ROUTE_METRICS      = "/metrics"
	ROUTE_TOKENS       = "/tokens"
	ROUTE_TOKEN        = "/tokens/:mint"
	ROUTE_TOKEN_MINT   = "/tokens/:mint/mint"
	ROUTE_TOKEN_RESUME = "/tokens/:mint/resume"
	ROUTE_TOKEN_TXS    = "/tokens/:mint/txs"

	HEADER_REQUEST_ID = "X-Request-Id"

	// POST /tokens defaults
	DefaultDecimals      = 9
	DefaultInitialSupply = "1"
)

type HttpReporter struct {
	serverIP   string // listen ip
	serverPort string // listen port
	cluster    string // for explorer links

	issuer  *issuer.Issuer   // concrete object
	metrics *metrics.Metrics // optional

	server     *http.Server
	listenAddr string // set by Start
}

func NewHttpReporter(serverIP string, serverPort string, cluster string, is *issuer.Issuer, m *metrics.Metrics) *HttpReporter {
	return &HttpReporter{
		serverIP:   serverIP,
		serverPort: serverPort,
		cluster:    cluster,
		issuer:     is,
		metrics:    m,
	}
}

// Hook up routes & handlers
func (h *HttpReporter) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestID(), h.accessLog())

	// Define routes & handlers
	router.GET(ROUTE_HEALTH, h.Health)
	if h.metrics != nil {
		router.GET(ROUTE_METRICS, gin.WrapH(h.metrics.Handler()))
	}
	router.GET(ROUTE_TOKENS, h.ListTokens)
	router.POST(ROUTE_TOKENS, h.IssueToken)
	router.GET(ROUTE_TOKEN, h.GetToken)
	router.POST(ROUTE_TOKEN_MINT, h.MintMore)
	router.POST(ROUTE_TOKEN_RESUME, h.Resume)
	router.GET(ROUTE_TOKEN_TXS, h.Transactions)

	return router
}

// Address is the bound address once started, the configured one before.
func (h *HttpReporter) Address() string {
	if h.listenAddr != "" {
		return h.listenAddr
	}
	return net.JoinHostPort(h.serverIP, h.serverPort)
}

// Start listens on ip:port and serves in the background.
func (h *HttpReporter) Start() error {
	lis, err := net.Listen("tcp", h.Address())
	if err != nil {
		return err
	}
	h.listenAddr = lis.Addr().String()
	h.server = &http.Server{
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := h.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http reporter stopped: err=%v", err)
		}
	}()
	logger.WithField("addr", h.listenAddr).Info("http reporter listening")
	return nil
}

func (h *HttpReporter) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HttpReporter) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HEADER_REQUEST_ID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(HEADER_REQUEST_ID, id)
		c.Header(HEADER_REQUEST_ID, id)
		c.Next()
	}
}

func (h *HttpReporter) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if h.metrics != nil {
			h.metrics.HTTPRequest(route, strconv.Itoa(c.Writer.Status()))
		}
		logger.WithFields(logger.Fields{
			"id":      c.GetString(HEADER_REQUEST_ID),
			"method":  c.Request.Method,
			"route":   route,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("http request")
	}
}

func (h *HttpReporter) Health(c *gin.Context) {
	resp := gin.H{"status": "ok", "cluster": h.cluster}
	owner, err := h.issuer.Owner(c.Request.Context())
	if err != nil {
		resp["wallet"] = "disconnected"
	} else {
		resp["wallet"] = "connected"
		resp["owner"] = owner.ToBase58()
	}
	c.JSON(http.StatusOK, resp)
}

type issueBody struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	// Defaults to 9.
	Decimals *int `json:"decimals"`

	// UI amount, defaults to one whole token.
	InitialSupply string `json:"initial_supply"`
	// Takes precedence over InitialSupply when set.
	InitialSupplyBaseUnits *uint64 `json:"initial_supply_base_units"`
}

func (h *HttpReporter) IssueToken(c *gin.Context) {
	var body issueBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	decimals := DefaultDecimals
	if body.Decimals != nil {
		decimals = *body.Decimals
	}
	if decimals < 0 || decimals > common.MaxDecimals {
		badRequest(c, agreement.ErrInvalidDecimals)
		return
	}

	var supply uint64
	if body.InitialSupplyBaseUnits != nil {
		supply = *body.InitialSupplyBaseUnits
	} else {
		ui := body.InitialSupply
		if ui == "" {
			ui = DefaultInitialSupply
		}
		var err error
		if supply, err = common.ToBaseUnits(ui, uint8(decimals)); err != nil {
			badRequest(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	mint, err := h.issuer.Issue(ctx, &agreement.IssuanceRequest{
		Name:          body.Name,
		Symbol:        body.Symbol,
		Decimals:      uint8(decimals),
		InitialSupply: supply,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	rec, err := h.issuer.Issuance(ctx, mint)
	if err != nil || rec == nil {
		// minted, but the record is gone; answer with what we know
		c.JSON(http.StatusCreated, gin.H{"mint": mint.ToBase58(), "explorer": common.ExplorerAddressURL(mint.ToBase58(), h.cluster)})
		return
	}
	c.JSON(http.StatusCreated, h.issuanceView(rec))
}

func (h *HttpReporter) ListTokens(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		owner solcommon.PublicKey
		err   error
	)
	if s := c.Query("owner"); s != "" {
		if owner, err = common.ParsePublicKey(s); err != nil {
			badRequest(c, err)
			return
		}
	} else if owner, err = h.issuer.Owner(ctx); err != nil {
		h.writeError(c, err)
		return
	}

	recs, err := h.issuer.Issuances(ctx, owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, h.issuanceView(rec))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *HttpReporter) GetToken(c *gin.Context) {
	mint, ok := mintParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rec, err := h.issuer.Issuance(ctx, mint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"mint": mint.ToBase58(), "managed": rec != nil}
	if rec != nil {
		resp = h.issuanceView(rec)
		resp["managed"] = true
	}

	holding, err := h.issuer.Balance(ctx, mint)
	if err != nil {
		if issuer.KindOf(err) != issuer.KindConnection {
			h.writeError(c, err)
			return
		}
		// no wallet, the record alone still makes sense
		if rec == nil {
			h.writeError(c, err)
			return
		}
	} else {
		hv := gin.H{
			"owner":      holding.Owner.ToBase58(),
			"account":    holding.Account.ToBase58(),
			"exists":     holding.Exists,
			"base_units": strconv.FormatUint(holding.Amount, 10),
		}
		if rec != nil {
			hv["amount"] = common.FormatBaseUnits(holding.Amount, rec.Decimals)
		}
		resp["holding"] = hv
	}
	c.JSON(http.StatusOK, resp)
}

type mintBody struct {
	// UI amount, needs the mint decimals on record
	Amount string `json:"amount"`
	// Takes precedence over Amount when set.
	BaseUnits *uint64 `json:"base_units"`
}

func (h *HttpReporter) MintMore(c *gin.Context) {
	mint, ok := mintParam(c)
	if !ok {
		return
	}
	var body mintBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	var amount uint64
	switch {
	case body.BaseUnits != nil:
		amount = *body.BaseUnits
	case body.Amount != "":
		rec, err := h.issuer.Issuance(ctx, mint)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			badRequest(c, errors.New("unknown mint decimals, give base_units instead of amount"))
			return
		}
		if amount, err = common.ToBaseUnits(body.Amount, rec.Decimals); err != nil {
			badRequest(c, err)
			return
		}
	default:
		badRequest(c, errors.New("amount or base_units required"))
		return
	}

	receipt, err := h.issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: amount})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.receiptView(receipt))
}

func (h *HttpReporter) Resume(c *gin.Context) {
	mint, ok := mintParam(c)
	if !ok {
		return
	}
	receipt, err := h.issuer.Resume(c.Request.Context(), mint)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.receiptView(receipt))
}

func (h *HttpReporter) Transactions(c *gin.Context) {
	mint, ok := mintParam(c)
	if !ok {
		return
	}
	txs, err := h.issuer.Transactions(c.Request.Context(), mint)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(txs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No transaction found"})
		return
	}

	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		out = append(out, gin.H{
			"signature": tx.Signature,
			"kind":      tx.Kind,
			"status":    tx.Status,
			"slot":      tx.Slot,
			"err":       tx.Err,
			"sent_at":   tx.SentAt.UTC().Format(time.RFC3339),
			"explorer":  common.ExplorerTxURL(tx.Signature, h.cluster),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *HttpReporter) issuanceView(rec *issuancedb.Issuance) gin.H {
	v := gin.H{
		"mint":                      rec.Mint.ToBase58(),
		"owner":                     rec.Owner.ToBase58(),
		"name":                      rec.Name,
		"symbol":                    rec.Symbol,
		"decimals":                  rec.Decimals,
		"initial_supply":            common.FormatBaseUnits(rec.InitialSupply, rec.Decimals),
		"initial_supply_base_units": strconv.FormatUint(rec.InitialSupply, 10),
		"stage":                     rec.Stage,
		"init_tx":                   rec.InitTxSig,
		"created_at":                rec.CreatedAt.UTC().Format(time.RFC3339),
		"explorer":                  common.ExplorerAddressURL(rec.Mint.ToBase58(), h.cluster),
	}
	if rec.SupplyTxSig != "" {
		v["supply_tx"] = rec.SupplyTxSig
	}
	return v
}

func (h *HttpReporter) receiptView(r *agreement.TxReceipt) gin.H {
	return gin.H{
		"signature": r.Signature,
		"confirmed": r.Confirmed,
		"slot":      r.Slot,
		"explorer":  common.ExplorerTxURL(r.Signature, h.cluster),
	}
}

func mintParam(c *gin.Context) (solcommon.PublicKey, bool) {
	mint, err := common.ParsePublicKey(c.Param("mint"))
	if err != nil {
		badRequest(c, err)
		return mint, false
	}
	return mint, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": issuer.KindBuild})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, issuer.ErrIssuanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, issuer.ErrIssuanceIncomplete) && issuer.KindOf(err) == issuer.KindBuild:
		return http.StatusConflict
	}
	switch issuer.KindOf(err) {
	case issuer.KindBuild:
		return http.StatusBadRequest
	case issuer.KindConnection:
		return http.StatusServiceUnavailable
	case issuer.KindSubmission:
		return http.StatusUnprocessableEntity
	case issuer.KindConfirmationTimeout:
		return http.StatusGatewayTimeout
	case issuer.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *HttpReporter) writeError(c *gin.Context, err error) {
	resp := gin.H{"error": err.Error()}
	var e *issuer.Error
	if errors.As(err, &e) {
		resp["kind"] = e.Kind
		if e.Mint != "" {
			resp["mint"] = e.Mint
		}
		if e.Signature != "" {
			resp["signature"] = e.Signature
			resp["explorer"] = common.ExplorerTxURL(e.Signature, h.cluster)
		}
	}
	c.JSON(statusOf(err), resp)
}
