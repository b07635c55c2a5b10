package paymentsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/fundisha/backend/core"
	"github.com/fundisha/backend/core/payment"
)

const defaultBaseURL = "https://api.paystack.co"

type paystackGateway struct {
	baseURL     string
	secretKey   string
	callbackURL string
	currency    string
	client      *http.Client
}

var _ payment.Gateway = (*paystackGateway)(nil)

func NewPaystackGateway(conf *core.Config) payment.Gateway {
	baseURL := conf.Paystack.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &paystackGateway{
		baseURL:     baseURL,
		secretKey:   conf.Paystack.SecretKey,
		callbackURL: conf.Paystack.CallbackURL,
		currency:    conf.Paystack.Currency,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

type (
	initializeRequest struct {
		Email       string            `json:"email"`
		Amount      int64             `json:"amount"` // minor unit
		Currency    string            `json:"currency,omitempty"`
		CallbackURL string            `json:"callback_url,omitempty"`
		Metadata    map[string]string `json:"metadata,omitempty"`
	}

	initializeResponse struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	verifyResponse struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status    string  `json:"status"` // "success", "failed", "abandoned"
			Reference string  `json:"reference"`
			Amount    float64 `json:"amount"` // minor unit
		} `json:"data"`
	}
)

func (gw *paystackGateway) Initialize(ctx context.Context, email string, amount float64, metadata map[string]string) (payment.InitResult, error) {
	body := initializeRequest{
		Email:       email,
		Amount:      int64(math.Round(amount * 100)),
		Currency:    gw.currency,
		CallbackURL: gw.callbackURL,
		Metadata:    metadata,
	}
	var res initializeResponse
	if err := gw.do(ctx, http.MethodPost, "/transaction/initialize", body, &res); err != nil {
		return payment.InitResult{}, err
	}
	if !res.Status {
		return payment.InitResult{}, errors.Errorf("initializing transaction: %s", res.Message)
	}
	return payment.InitResult{
		AuthorizationURL: res.Data.AuthorizationURL,
		Reference:        res.Data.Reference,
	}, nil
}

func (gw *paystackGateway) Verify(ctx context.Context, ref string) (payment.VerifyResult, error) {
	var res verifyResponse
	if err := gw.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(ref), nil, &res); err != nil {
		return payment.VerifyResult{}, err
	}
	if !res.Status {
		return payment.VerifyResult{}, errors.Errorf("verifying transaction: %s", res.Message)
	}
	return payment.VerifyResult{
		Reference: res.Data.Reference,
		Success:   res.Data.Status == "success",
		Amount:    res.Data.Amount / 100,
	}, nil
}

func (gw *paystackGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = new(bytes.Buffer)
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return errors.Wrap(err, "encoding request")
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, gw.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Authorization", "Bearer "+gw.secretKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := gw.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling provider")
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusInternalServerError {
		return errors.Errorf("provider error: %s", res.Status)
	}
	if err = json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
