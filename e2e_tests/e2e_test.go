package e2etests

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Runs against a live stack started with APP_ENV=DEV seeds:
//
//	E2E_BASE_URL=http://localhost:8080 \
//	E2E_PAYTR_KEY=... E2E_PAYTR_SALT=... go test ./e2e_tests/...
const (
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second

	seededListing = "listing-gold-003"
	seededPrice   = 9500
	seededSeller  = "seller-2"
)

var httpClient = &http.Client{Timeout: timeout}

type env struct {
	baseURL string
	key     string
	salt    string
}

func setup(t *testing.T) env {
	t.Helper()

	e := env{
		baseURL: strings.TrimRight(os.Getenv("E2E_BASE_URL"), "/"),
		key:     os.Getenv("E2E_PAYTR_KEY"),
		salt:    os.Getenv("E2E_PAYTR_SALT"),
	}
	if e.baseURL == "" {
		t.Skip("E2E_BASE_URL not set")
	}

	e.waitUntilReady(t)

	return e
}

func TestE2E_EmptyWallet(t *testing.T) {
	e := setup(t)
	user := "e2e-" + uuid.NewString()

	code, body := e.do(t, http.MethodGet, "/wallet", user, nil)
	require.Equal(t, http.StatusOK, code, body)

	var w struct {
		BalanceAvailable int64  `json:"balanceAvailable"`
		BalanceHeld      int64  `json:"balanceHeld"`
		Total            string `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &w))
	require.Zero(t, w.BalanceAvailable)
	require.Zero(t, w.BalanceHeld)
	require.Equal(t, "0.00", w.Total)
}

func TestE2E_Validation(t *testing.T) {
	e := setup(t)
	user := "e2e-" + uuid.NewString()

	code, _ := e.do(t, http.MethodGet, "/wallet", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := e.do(t, http.MethodPost, "/orders", user, map[string]string{"listingId": seededListing})
	// INSUFFICIENT_FUNDS, or LISTING_UNAVAILABLE once an earlier run bought it
	require.Equal(t, http.StatusConflict, code, body)

	code, _ = e.do(t, http.MethodGet, "/orders/not-a-uuid", user, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, body = e.do(t, http.MethodPost, "/payments/paytr/callback", "", nil)
	require.Equal(t, http.StatusBadRequest, code, body)
}

func TestE2E_DepositOrderFlow(t *testing.T) {
	e := setup(t)
	if e.key == "" || e.salt == "" {
		t.Skip("E2E_PAYTR_KEY and E2E_PAYTR_SALT not set")
	}

	buyer := "e2e-" + uuid.NewString()

	code, body := e.do(t, http.MethodPost, "/deposits", buyer, map[string]string{
		"amount": "100.00",
		"email":  "buyer@example.com",
	})
	require.Equal(t, http.StatusCreated, code, body)

	var init struct {
		Deposit struct {
			ID                 string `json:"id"`
			GrossAmount        int64  `json:"grossAmount"`
			GatewayMerchantOID string `json:"gatewayMerchantOid"`
		} `json:"deposit"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &init))

	// the gateway may call back more than once
	for range 2 {
		code, body = e.callback(t, init.Deposit.GatewayMerchantOID, init.Deposit.GrossAmount)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "OK", body)
	}

	code, body = e.do(t, http.MethodGet, "/deposits/"+init.Deposit.ID, buyer, nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Contains(t, body, `"status":"SUCCESS"`)

	require.Equal(t, int64(10000), e.available(t, buyer))

	code, body = e.do(t, http.MethodPost, "/orders", buyer, map[string]string{"listingId": seededListing})
	if code == http.StatusConflict && strings.Contains(body, "LISTING_UNAVAILABLE") {
		t.Skip("seeded listing already sold by an earlier run")
	}
	require.Equal(t, http.StatusCreated, code, body)

	var order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &order))
	require.Equal(t, "PENDING_DELIVERY", order.Status)
	require.Equal(t, int64(10000-seededPrice), e.available(t, buyer))

	code, body = e.do(t, http.MethodPost, "/orders/"+order.ID+"/confirm", buyer, nil)
	require.Equal(t, http.StatusOK, code, body)
	require.Contains(t, body, `"status":"COMPLETED"`)

	code, body = e.do(t, http.MethodGet, "/admin/wallets/"+seededSeller+"/reconcile", "", nil, "X-Admin-ID", "e2e-admin")
	require.Equal(t, http.StatusOK, code, body)
}

func (e env) available(t *testing.T, user string) int64 {
	t.Helper()

	code, body := e.do(t, http.MethodGet, "/wallet", user, nil)
	require.Equal(t, http.StatusOK, code, body)

	var w struct {
		BalanceAvailable int64 `json:"balanceAvailable"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &w))

	return w.BalanceAvailable
}

func (e env) callback(t *testing.T, merchantOID string, total int64) (int, string) {
	t.Helper()

	totalStr := strconv.FormatInt(total, 10)
	mac := hmac.New(sha256.New, []byte(e.key))
	mac.Write([]byte(merchantOID + e.salt + "success" + totalStr))

	form := url.Values{
		"merchant_oid": {merchantOID},
		"status":       {"success"},
		"total_amount": {totalStr},
		"hash":         {base64.StdEncoding.EncodeToString(mac.Sum(nil))},
	}

	resp, err := httpClient.PostForm(e.baseURL+"/payments/paytr/callback", form)
	require.NoError(t, err)
	//nolint:errcheck
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, string(b)
}

func (e env) do(t *testing.T, method, path, user string, payload any, headers ...string) (int, string) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.baseURL+path, body)
	require.NoError(t, err)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if user != "" {
		req.Header.Set("X-User-ID", user)
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	//nolint:errcheck
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)

	return resp.StatusCode, string(b)
}

func (e env) waitUntilReady(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(waitReady)
	for {
		resp, err := httpClient.Get(e.baseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}

		if time.Now().After(deadline) {
			t.Fatalf("api at %s not ready after %s: %v", e.baseURL, waitReady, err)
		}

		time.Sleep(500 * time.Millisecond)
	}
}
