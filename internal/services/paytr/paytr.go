// Package paytr computes and verifies the PayTR iFrame API signatures.
// It holds no state and performs no I/O.
package paytr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// Callback statuses sent by the gateway.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type BasketItem struct {
	Name     string
	Price    int64 // minor units
	Quantity int
}

type TokenRequest struct {
	MerchantOID    string
	UserIP         string
	Email          string
	PaymentAmount  int64 // minor units
	Basket         []BasketItem
	NoInstallment  bool
	MaxInstallment int
	UserName       string
	UserAddress    string
	UserPhone      string
}

// Callback is the form body PayTR posts to the notification URL.
type Callback struct {
	MerchantOID        string
	Status             string
	TotalAmount        int64
	Hash               string
	FailedReasonCode   string
	FailedReasonMsg    string
	PaymentType        string
	Currency           string
	PaymentAmount      string
	TestMode           string
	InstallmentCount   string
	MerchantIDFromForm string
}

func (c Callback) Succeeded() bool {
	return c.Status == StatusSuccess
}

// Meta is the callback as stored in deposits.gateway_response.
func (c Callback) Meta() models.Meta {
	m := models.Meta{
		"merchant_oid": c.MerchantOID,
		"status":       c.Status,
		"total_amount": c.TotalAmount,
	}

	for k, v := range map[string]string{
		"failed_reason_code": c.FailedReasonCode,
		"failed_reason_msg":  c.FailedReasonMsg,
		"payment_type":       c.PaymentType,
		"currency":           c.Currency,
		"payment_amount":     c.PaymentAmount,
		"test_mode":          c.TestMode,
		"installment_count":  c.InstallmentCount,
	} {
		if v != "" {
			m[k] = v
		}
	}

	return m
}

type Service struct {
	cfg config.PayTRConfig
}

func New(cfg config.PayTRConfig) *Service {
	return &Service{cfg: cfg}
}

// GenerateToken signs a payment request:
// base64(HMAC-SHA256(merchant_id + user_ip + merchant_oid + email +
// payment_amount + user_basket + no_installment + max_installment +
// currency + test_mode + merchant_salt, merchant_key)).
func (s *Service) GenerateToken(req TokenRequest) (string, error) {
	basket, err := encodeBasket(req.Basket)
	if err != nil {
		return "", err
	}

	return s.token(req, basket), nil
}

func (s *Service) token(req TokenRequest, basket string) string {
	var b strings.Builder

	b.WriteString(s.cfg.MerchantID)
	b.WriteString(req.UserIP)
	b.WriteString(req.MerchantOID)
	b.WriteString(req.Email)
	b.WriteString(strconv.FormatInt(req.PaymentAmount, 10))
	b.WriteString(basket)
	b.WriteString(flag(req.NoInstallment))
	b.WriteString(strconv.Itoa(req.MaxInstallment))
	b.WriteString(s.cfg.Currency)
	b.WriteString(flag(s.cfg.TestMode))
	b.WriteString(s.cfg.MerchantSalt)

	return s.sign(b.String())
}

// PaymentForm returns the fields posted to the token endpoint, paytr_token
// included.
func (s *Service) PaymentForm(req TokenRequest) (url.Values, error) {
	basket, err := encodeBasket(req.Basket)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("merchant_id", s.cfg.MerchantID)
	form.Set("user_ip", req.UserIP)
	form.Set("merchant_oid", req.MerchantOID)
	form.Set("email", req.Email)
	form.Set("payment_amount", strconv.FormatInt(req.PaymentAmount, 10))
	form.Set("paytr_token", s.token(req, basket))
	form.Set("user_basket", basket)
	form.Set("debug_on", "0")
	form.Set("no_installment", flag(req.NoInstallment))
	form.Set("max_installment", strconv.Itoa(req.MaxInstallment))
	form.Set("user_name", req.UserName)
	form.Set("user_address", req.UserAddress)
	form.Set("user_phone", req.UserPhone)
	form.Set("merchant_ok_url", s.cfg.OKURL)
	form.Set("merchant_fail_url", s.cfg.FailURL)
	form.Set("timeout_limit", strconv.Itoa(int(s.cfg.Timeout.Minutes())))
	form.Set("currency", s.cfg.Currency)
	form.Set("test_mode", flag(s.cfg.TestMode))

	return form, nil
}

// TokenURL is where PaymentForm is posted.
func (s *Service) TokenURL() string {
	return s.cfg.TokenURL
}

// CallbackHash is base64(HMAC-SHA256(merchant_oid + merchant_salt + status +
// total_amount, merchant_key)).
func (s *Service) CallbackHash(merchantOID, status string, totalAmount int64) string {
	return s.sign(merchantOID + s.cfg.MerchantSalt + status + strconv.FormatInt(totalAmount, 10))
}

// VerifyCallback checks the callback hash in constant time.
func (s *Service) VerifyCallback(cb Callback) error {
	want := s.CallbackHash(cb.MerchantOID, cb.Status, cb.TotalAmount)

	if !hmac.Equal([]byte(want), []byte(cb.Hash)) {
		return fmt.Errorf("paytr callback %s: %w", cb.MerchantOID, models.ErrSignatureMismatch)
	}

	return nil
}

// ParseCallback reads the callback form. Missing or malformed required
// fields are reported as ErrSignatureMismatch since such a payload cannot be
// authenticated.
func ParseCallback(form url.Values) (Callback, error) {
	cb := Callback{
		MerchantOID:        form.Get("merchant_oid"),
		Status:             form.Get("status"),
		Hash:               form.Get("hash"),
		FailedReasonCode:   form.Get("failed_reason_code"),
		FailedReasonMsg:    form.Get("failed_reason_msg"),
		PaymentType:        form.Get("payment_type"),
		Currency:           form.Get("currency"),
		PaymentAmount:      form.Get("payment_amount"),
		TestMode:           form.Get("test_mode"),
		InstallmentCount:   form.Get("installment_count"),
		MerchantIDFromForm: form.Get("merchant_id"),
	}

	if cb.MerchantOID == "" || cb.Hash == "" {
		return Callback{}, fmt.Errorf("callback missing merchant_oid or hash: %w", models.ErrSignatureMismatch)
	}

	if cb.Status != StatusSuccess && cb.Status != StatusFailed {
		return Callback{}, fmt.Errorf("callback status %q: %w", cb.Status, models.ErrSignatureMismatch)
	}

	total, err := strconv.ParseInt(form.Get("total_amount"), 10, 64)
	if err != nil || total < 0 {
		return Callback{}, fmt.Errorf("callback total_amount %q: %w", form.Get("total_amount"), models.ErrSignatureMismatch)
	}

	cb.TotalAmount = total

	return cb, nil
}

func (s *Service) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.cfg.MerchantKey))
	mac.Write([]byte(payload))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// encodeBasket renders the basket as base64 of a JSON array of
// [name, price, quantity] triples, price in major units with two decimals.
func encodeBasket(items []BasketItem) (string, error) {
	rows := make([][]any, 0, len(items))

	for _, it := range items {
		rows = append(rows, []any{it.Name, decimal.New(it.Price, -2).StringFixed(2), it.Quantity})
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode basket: %w", err)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}

func flag(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
