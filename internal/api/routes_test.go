package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/rscoin/internal/bank"
	"github.com/rawblock/rscoin/internal/mintette"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func mustSK(t *testing.T) rscoin.SecretKey {
	t.Helper()
	sk, err := rscoin.GenerateSecretKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return sk
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}, authToken string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMintetteRouterGetMintettePeriodReportsIdle(t *testing.T) {
	owner := rscoin.NewAddress(mustSK(t).Public())
	store := mintette.NewStorage(mintette.NewState(0, []rscoin.Address{owner}, nil, 3))
	router := SetupMintetteRouter(store, mustSK(t), NewHub(), "")

	w := doJSON(t, router, http.MethodGet, "/api/v1/getMintettePeriod", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		PeriodID uint64 `json:"periodId"`
		OK       bool   `json:"ok"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK {
		t.Fatalf("expected ok=false before any period started")
	}
}

func TestMintetteRouterProtectedRouteRejectsMissingAuth(t *testing.T) {
	owner := rscoin.NewAddress(mustSK(t).Public())
	store := mintette.NewStorage(mintette.NewState(0, []rscoin.Address{owner}, nil, 3))
	router := SetupMintetteRouter(store, mustSK(t), NewHub(), "s3cret-token")

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkTx", map[string]interface{}{}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without Authorization header, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMintetteRouterProtectedRouteRejectsWrongToken(t *testing.T) {
	owner := rscoin.NewAddress(mustSK(t).Public())
	store := mintette.NewStorage(mintette.NewState(0, []rscoin.Address{owner}, nil, 3))
	router := SetupMintetteRouter(store, mustSK(t), NewHub(), "s3cret-token")

	w := doJSON(t, router, http.MethodPost, "/api/v1/checkTx", map[string]interface{}{}, "wrong-token")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMintetteRouterCheckTxHappyPath(t *testing.T) {
	sk := mustSK(t)
	ownerSK := mustSK(t)
	owner := rscoin.NewAddress(ownerSK.Public())

	bankSK := mustSK(t)
	bankSig, err := rscoin.Sign(bankSK, sk.Public())
	if err != nil {
		t.Fatalf("sign dpk entry: %v", err)
	}
	dpk := []rscoin.DPKEntry{{Key: sk.Public(), BankSig: bankSig}}

	addrID := rscoin.AddrId{TxHash: rscoin.HashBytes([]byte("prior-tx")), OutputIndex: 0, Value: rscoin.CoinFromInt(10)}
	recipient := rscoin.NewAddress(mustSK(t).Public())
	tx := rscoin.Transaction{
		Inputs:  []rscoin.AddrId{addrID},
		Outputs: []rscoin.TxOutput{{Address: recipient, Value: rscoin.CoinFromInt(10)}},
	}
	sig, err := rscoin.Sign(ownerSK, tx)
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}

	st := mintette.NewState(0, []rscoin.Address{owner}, dpk, 3)
	st.Phase = mintette.PhaseRunning
	store := mintette.NewStorage(st)
	startErr := store.StartPeriod(mintette.NewPeriodData{
		PeriodID:  0,
		Mintettes: []rscoin.Address{owner},
		Payload: &mintette.Payload{
			MintetteID: 0,
			UTXO:       map[rscoin.AddrKey]rscoin.AddrId{addrID.Key(): addrID},
			Owners:     map[rscoin.AddrKey]rscoin.Address{addrID.Key(): owner},
			Addresses:  rscoin.NewAddressBook(),
		},
	})
	if startErr != nil {
		t.Fatalf("startPeriod: %v", startErr)
	}

	router := SetupMintetteRouter(store, sk, NewHub(), "")

	body := map[string]interface{}{
		"tx":     tx,
		"addrId": addrID,
		"sigs":   []rscoin.AddrSig{{Address: owner, Sig: sig}},
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/checkTx", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var conf rscoin.CheckConfirmation
	if err := json.Unmarshal(w.Body.Bytes(), &conf); err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if conf.PeriodID != 0 {
		t.Fatalf("expected periodId 0, got %d", conf.PeriodID)
	}
}

func TestBankRouterInitAndGetMintettes(t *testing.T) {
	bankSK := mustSK(t)
	mintetteSK := mustSK(t)
	bankAddr := rscoin.NewAddress(bankSK.Public())
	mintetteAddr := rscoin.NewAddress(mintetteSK.Public())

	bankSig, err := rscoin.Sign(bankSK, mintetteSK.Public())
	if err != nil {
		t.Fatalf("sign dpk entry: %v", err)
	}
	dpk := []rscoin.DPKEntry{{Key: mintetteSK.Public(), BankSig: bankSig}}

	storage := bank.NewStorage(bank.NewState(bankAddr, 1))
	notifier := bank.NewNotifier(BroadcastPeriodEvent(NewHub()))
	router := SetupBankRouter(storage, bankSK, NewHub(), notifier, "")

	initBody := map[string]interface{}{
		"mintettes": []rscoin.Address{mintetteAddr},
		"dpk":       dpk,
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/init", initBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from init, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/getMintettes", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from getMintettes, got %d: %s", w.Code, w.Body.String())
	}
	var mintettes []rscoin.Address
	if err := json.Unmarshal(w.Body.Bytes(), &mintettes); err != nil {
		t.Fatalf("decode mintettes: %v", err)
	}
	if len(mintettes) != 1 {
		t.Fatalf("expected one mintette in roster, got %d", len(mintettes))
	}
}

func TestBankRouterRegisterExplorerGeneratesID(t *testing.T) {
	bankSK := mustSK(t)
	storage := bank.NewStorage(bank.NewState(rscoin.NewAddress(bankSK.Public()), 3))
	notifier := bank.NewNotifier(BroadcastPeriodEvent(NewHub()))
	router := SetupBankRouter(storage, bankSK, NewHub(), notifier, "")

	w := doJSON(t, router, http.MethodPost, "/api/v1/explorer/register", map[string]interface{}{}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected a generated explorer id")
	}
}
