package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/rscoin/internal/bank"
	"github.com/rawblock/rscoin/internal/mintette"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

// defaultPageLimit bounds getBlocks/getLogs dump endpoints the way
// handleGetMixers paginates history, so a long-lived chain or log can't be
// returned in one unbounded response.
const defaultPageLimit = 50

func paginate(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if limit <= 0 || limit > 500 {
		limit = defaultPageLimit
	}
	return page, limit
}

func sliceWindow[T any](items []T, page, limit int) ([]T, int) {
	total := len(items)
	start := (page - 1) * limit
	if start >= total {
		return []T{}, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], total
}

func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// ──────────────────────────────────────────────────────────────────
// Mintette RPC surface (§4.G "Mintette methods")
// ──────────────────────────────────────────────────────────────────

// MintetteHandler binds the mintette state machine (internal/mintette) to
// HTTP, the way APIHandler bound the forensics engine to gin routes.
type MintetteHandler struct {
	store *mintette.Storage
	sk    rscoin.SecretKey
	wsHub *Hub
}

// SetupMintetteRouter wires every §4.G mintette method to a route.
func SetupMintetteRouter(store *mintette.Storage, sk rscoin.SecretKey, wsHub *Hub, authToken string) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	h := &MintetteHandler{store: store, sk: sk, wsHub: wsHub}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/getMintettePeriod", h.handleGetMintettePeriod)
		pub.GET("/getUtxo", h.handleGetUTXO)
		pub.GET("/getBlocks/:periodId", h.handleGetBlocks)
		pub.GET("/getLogs/:periodId", h.handleGetLogs)
	}

	prot := r.Group("/api/v1")
	prot.Use(AuthMiddleware(authToken))
	prot.Use(NewRateLimiter(120, 20).Middleware())
	{
		prot.POST("/checkTx", h.handleCheckTx)
		prot.POST("/checkTxBatch", h.handleCheckTxBatch)
		prot.POST("/commitTx", h.handleCommitTx)
		prot.POST("/periodFinished", h.handlePeriodFinished)
		prot.POST("/announceNewPeriod", h.handleAnnounceNewPeriod)
	}

	return r
}

func (h *MintetteHandler) handleHealth(c *gin.Context) {
	periodID, ok := h.store.GetPeriod()
	c.JSON(http.StatusOK, gin.H{
		"status":   "operational",
		"periodId": periodID,
		"running":  ok,
	})
}

func mintetteErrStatus(err error) int {
	switch mintette.CodeOf(err) {
	case mintette.CodeWrongPeriod:
		return http.StatusConflict
	case mintette.CodeDoubleSpend, mintette.CodeNotUnspent, mintette.CodeInvalidTxInput,
		mintette.CodeInvalidSum, mintette.CodeUnauthorizedSpend, mintette.CodeCommitWithoutCheck,
		mintette.CodeNotAllOwnersConfirmed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleCheckTx implements checkTx(tx, addrId, sigs).
func (h *MintetteHandler) handleCheckTx(c *gin.Context) {
	var req struct {
		Tx     rscoin.Transaction `json:"tx"`
		AddrID rscoin.AddrId      `json:"addrId"`
		Sigs   []rscoin.AddrSig   `json:"sigs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	conf, err := h.store.CheckNotDoubleSpent(h.sk, req.Tx, req.AddrID, req.Sigs)
	if err != nil {
		c.JSON(mintetteErrStatus(err), gin.H{"error": err.Error(), "code": mintette.CodeOf(err).String()})
		return
	}
	c.JSON(http.StatusOK, conf)
}

// checkTxBatchEntry pairs one addrId with the signatures offered for it —
// checkTxBatch's sigsMap expressed as an array so it travels as ordinary
// JSON rather than needing a struct-keyed map.
type checkTxBatchEntry struct {
	AddrID rscoin.AddrId    `json:"addrId"`
	Sigs   []rscoin.AddrSig `json:"sigs"`
}

type checkTxBatchResultEntry struct {
	AddrID       rscoin.AddrId             `json:"addrId"`
	Confirmation *rscoin.CheckConfirmation `json:"confirmation,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// handleCheckTxBatch implements checkTxBatch(tx, sigsMap).
func (h *MintetteHandler) handleCheckTxBatch(c *gin.Context) {
	var req struct {
		Tx      rscoin.Transaction  `json:"tx"`
		Entries []checkTxBatchEntry `json:"entries"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sigs := make(map[rscoin.AddrKey][]rscoin.AddrSig, len(req.Entries))
	addrByKey := make(map[rscoin.AddrKey]rscoin.AddrId, len(req.Entries))
	for _, e := range req.Entries {
		sigs[e.AddrID.Key()] = e.Sigs
		addrByKey[e.AddrID.Key()] = e.AddrID
	}

	results, err := h.store.CheckTxBatch(h.sk, req.Tx, sigs)
	if err != nil {
		c.JSON(mintetteErrStatus(err), gin.H{"error": err.Error(), "code": mintette.CodeOf(err).String()})
		return
	}

	out := make([]checkTxBatchResultEntry, 0, len(results))
	for key, res := range results {
		entry := checkTxBatchResultEntry{AddrID: addrByKey[key]}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else {
			conf := res.Confirmation
			entry.Confirmation = &conf
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

// handleCommitTx implements commitTx(tx, confirmations).
func (h *MintetteHandler) handleCommitTx(c *gin.Context) {
	var req struct {
		Tx            rscoin.Transaction                           `json:"tx"`
		Confirmations map[rscoin.MintetteID]rscoin.CheckConfirmation `json:"confirmations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ack, err := h.store.CommitTx(h.sk, req.Tx, req.Confirmations)
	if err != nil {
		c.JSON(mintetteErrStatus(err), gin.H{"error": err.Error(), "code": mintette.CodeOf(err).String()})
		return
	}
	c.JSON(http.StatusOK, ack)
}

// handlePeriodFinished implements periodFinished(pId).
func (h *MintetteHandler) handlePeriodFinished(c *gin.Context) {
	var req struct {
		PeriodID uint64 `json:"periodId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.store.PeriodFinished(h.sk, req.PeriodID)
	if err != nil {
		c.JSON(mintetteErrStatus(err), gin.H{"error": err.Error(), "code": mintette.CodeOf(err).String()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAnnounceNewPeriod implements announceNewPeriod(npd): the Bank
// pushes this mintette's slice of the new period down after startNewPeriod.
func (h *MintetteHandler) handleAnnounceNewPeriod(c *gin.Context) {
	var npd mintette.NewPeriodData
	if err := c.ShouldBindJSON(&npd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if err := h.store.StartPeriod(npd); err != nil {
		c.JSON(mintetteErrStatus(err), gin.H{"error": err.Error(), "code": mintette.CodeOf(err).String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "periodId": npd.PeriodID})
}

func (h *MintetteHandler) handleGetMintettePeriod(c *gin.Context) {
	periodID, ok := h.store.GetPeriod()
	c.JSON(http.StatusOK, gin.H{"periodId": periodID, "ok": ok})
}

func (h *MintetteHandler) handleGetUTXO(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.GetUTXO())
}

func (h *MintetteHandler) handleGetBlocks(c *gin.Context) {
	periodID, err := strconv.ParseUint(c.Param("periodId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid periodId"})
		return
	}
	blocks, ok := h.store.GetBlocks(periodID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "period not archived"})
		return
	}
	page, limit := paginate(c)
	window, total := sliceWindow(blocks, page, limit)
	c.JSON(http.StatusOK, gin.H{"data": window, "totalCount": total, "page": page, "limit": limit})
}

func (h *MintetteHandler) handleGetLogs(c *gin.Context) {
	periodID, err := strconv.ParseUint(c.Param("periodId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid periodId"})
		return
	}
	log, ok := h.store.GetLogs(periodID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "period not archived"})
		return
	}
	page, limit := paginate(c)
	window, total := sliceWindow(log.Entries, page, limit)
	c.JSON(http.StatusOK, gin.H{"data": window, "totalCount": total, "page": page, "limit": limit})
}

// ──────────────────────────────────────────────────────────────────
// Bank RPC surface (§4.G "Bank methods" + period-engine admin ops)
// ──────────────────────────────────────────────────────────────────

// BankHandler binds the bank period engine (internal/bank) to HTTP.
type BankHandler struct {
	store    *bank.Storage
	sk       rscoin.SecretKey
	wsHub    *Hub
	notifier *bank.Notifier
}

// SetupBankRouter wires §4.G's bank methods plus the admin/internal
// operations (init, startNewPeriod, periodResult, strategy, explorer
// registration) that drive the period engine and have no mintette analogue.
func SetupBankRouter(store *bank.Storage, sk rscoin.SecretKey, wsHub *Hub, notifier *bank.Notifier, authToken string) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	h := &BankHandler{store: store, sk: sk, wsHub: wsHub, notifier: notifier}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/getMintettes", h.handleGetMintettes)
		pub.GET("/getBlockchainHeight", h.handleGetBlockchainHeight)
		pub.GET("/getHBlock/:periodId", h.handleGetHBlock)
		pub.GET("/events", h.handleRecentEvents)
	}

	prot := r.Group("/api/v1")
	prot.Use(AuthMiddleware(authToken))
	prot.Use(NewRateLimiter(60, 10).Middleware())
	{
		prot.POST("/init", h.handleInit)
		prot.POST("/periodResult", h.handlePeriodResult)
		prot.POST("/startNewPeriod", h.handleStartNewPeriod)
		prot.POST("/strategy", h.handleSetStrategy)
		prot.POST("/explorer/register", h.handleRegisterExplorer)
		prot.POST("/explorer/unregister", h.handleUnregisterExplorer)
	}

	return r
}

func (h *BankHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"height": h.store.Height(),
	})
}

func bankErrStatus(err error) int {
	switch bank.CodeOf(err) {
	case bank.CodeWrongPeriod, bank.CodeUnknownMintette, bank.CodeUnknownExplorer:
		return http.StatusConflict
	case bank.CodeBadPeriodResult, bank.CodeInconsistentResponse:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *BankHandler) handleInit(c *gin.Context) {
	var req struct {
		Mintettes []rscoin.Address   `json:"mintettes"`
		DPK       []rscoin.DPKEntry  `json:"dpk"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	genesis, err := h.store.Init(h.sk, req.Mintettes, req.DPK)
	if err != nil {
		c.JSON(bankErrStatus(err), gin.H{"error": err.Error(), "code": bank.CodeOf(err).String()})
		return
	}
	c.JSON(http.StatusOK, genesis)
}

// handlePeriodResult receives a mintette's periodFinished reply (§4.F's
// polling step delivered as a push from the mintette side instead, which
// tolerates the Bank's per-mintette timeout just as well: a late result is
// simply not yet present in PendingResults when startNewPeriod runs).
func (h *BankHandler) handlePeriodResult(c *gin.Context) {
	var req struct {
		MintetteID rscoin.MintetteID      `json:"mintetteId"`
		Result     mintette.PeriodResult  `json:"result"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := h.store.SubmitPeriodResult(req.MintetteID, req.Result); err != nil {
		c.JSON(bankErrStatus(err), gin.H{"error": err.Error(), "code": bank.CodeOf(err).String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h *BankHandler) handleStartNewPeriod(c *gin.Context) {
	var req struct {
		DPK []rscoin.DPKEntry `json:"dpk"`
	}
	// DPK is optional: omitting it carries the current roster's DPK forward
	// unchanged, which is the common case (no key rotation this period).
	_ = c.ShouldBindJSON(&req)

	hblock, npd, err := h.store.StartNewPeriod(h.sk, req.DPK)
	if err != nil {
		c.JSON(bankErrStatus(err), gin.H{"error": err.Error(), "code": bank.CodeOf(err).String()})
		return
	}

	hblockHash, _ := hblock.Hash()
	h.notifier.Emit(bank.PeriodEvent{
		PeriodID:     hblock.PeriodID,
		HBlockHash:   hblockHash.String(),
		NumTxs:       len(hblock.Transactions),
		NumMintettes: len(h.store.GetMintettes()),
	})

	c.JSON(http.StatusOK, gin.H{"hblock": hblock, "newPeriodData": npd})
}

func (h *BankHandler) handleSetStrategy(c *gin.Context) {
	var req struct {
		Address  rscoin.Address    `json:"address"`
		Strategy rscoin.TxStrategy `json:"strategy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	h.store.SetPendingStrategy(req.Address, req.Strategy)
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

func (h *BankHandler) handleRegisterExplorer(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	// Body is optional: a dashboard that has no id of its own yet is handed
	// a freshly generated one to use for subsequent unregister calls.
	_ = c.ShouldBindJSON(&req)
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	h.store.RegisterExplorer(req.ID)
	c.JSON(http.StatusOK, gin.H{"status": "registered", "id": req.ID})
}

func (h *BankHandler) handleUnregisterExplorer(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	h.store.UnregisterExplorer(req.ID)
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

func (h *BankHandler) handleGetMintettes(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.GetMintettes())
}

func (h *BankHandler) handleGetBlockchainHeight(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"height": h.store.Height()})
}

func (h *BankHandler) handleGetHBlock(c *gin.Context) {
	periodID, err := strconv.ParseUint(c.Param("periodId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid periodId"})
		return
	}
	hb, ok := h.store.GetHBlock(periodID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no hblock for that period"})
		return
	}
	c.JSON(http.StatusOK, hb)
}

func (h *BankHandler) handleRecentEvents(c *gin.Context) {
	_, limit := paginate(c)
	c.JSON(http.StatusOK, gin.H{"events": h.notifier.Recent(limit)})
}

// BroadcastPeriodEvent adapts bank.Notifier's broadcast callback to the
// websocket Hub, the way the teacher's BroadcastCoinJoinAlert adapted
// scanner.CoinJoinAlert to it.
func BroadcastPeriodEvent(wsHub *Hub) func(bank.PeriodEvent) {
	return func(ev bank.PeriodEvent) {
		wsHub.Broadcast(bank.MarshalBroadcast(ev))
	}
}
