package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"plantstore-be/internal/logger"
	"plantstore-be/internal/metrics"

	"go.uber.org/zap"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"
	timestampLayout = "20060102150405"

	// tokenExpiryMargin keeps a cached token from being used in its last minute.
	tokenExpiryMargin = 60 * time.Second
	defaultTokenTTL   = 3599 * time.Second
)

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

type mpesaGateway struct {
	cfg        MpesaConfig
	httpClient *http.Client
	nairobiLoc *time.Location
	tokens     TokenCache
	now        func() time.Time
}

// ----------------- Constructor -----------------

func NewMpesaGateway(cfg MpesaConfig, tokens TokenCache) Gateway {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		logger.L().Warn("M-Pesa consumer credentials are empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}

	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		logger.L().Error("failed to load Nairobi location, using fixed EAT offset", zap.Error(err))
		loc = time.FixedZone("EAT", 3*60*60)
	}

	return &mpesaGateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		nairobiLoc: loc,
		tokens:     tokens,
		now:        time.Now,
	}
}

// ----------------- AccessToken -----------------

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (g *mpesaGateway) tokenKey() string {
	return "mpesa:access_token:" + g.cfg.Shortcode
}

func (g *mpesaGateway) AccessToken(ctx context.Context) (string, error) {
	if token, ok := g.tokens.Get(ctx, g.tokenKey()); ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &GatewayError{Op: "token", Err: err}
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	var out tokenResponse
	if err := g.do(req, "token", &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", &GatewayError{Op: "token", StatusCode: http.StatusOK, Message: "empty access token"}
	}

	ttl := defaultTokenTTL
	if secs, err := strconv.Atoi(strings.TrimSpace(out.ExpiresIn)); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	g.tokens.Set(ctx, g.tokenKey(), out.AccessToken, ttl-tokenExpiryMargin)

	return out.AccessToken, nil
}

// ----------------- STKPush -----------------

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// password is base64(shortcode + passkey + timestamp).
func (g *mpesaGateway) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.cfg.Shortcode + g.cfg.Passkey + timestamp))
}

func (g *mpesaGateway) timestamp() string {
	return g.now().In(g.nairobiLoc).Format(timestampLayout)
}

func (g *mpesaGateway) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResponse, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "STKPush"),
		zap.String("phone", in.PhoneNumber),
		zap.Int64("amount", in.Amount),
		zap.String("account_reference", in.AccountReference),
	)

	token, err := g.AccessToken(ctx)
	if err != nil {
		log.Error("failed to obtain access token", zap.Error(err))
		return nil, err
	}

	ts := g.timestamp()
	body := stkPushBody{
		BusinessShortCode: g.cfg.Shortcode,
		Password:          g.password(ts),
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            in.Amount,
		PartyA:            in.PhoneNumber,
		PartyB:            g.cfg.Shortcode,
		PhoneNumber:       in.PhoneNumber,
		CallBackURL:       g.cfg.CallbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   in.Description,
	}

	req, err := g.newJSONRequest(ctx, stkPushPath, token, body)
	if err != nil {
		return nil, &GatewayError{Op: "stk_push", Err: err}
	}

	log.Info("Sending STK push to M-Pesa")

	var out STKPushResponse
	if err := g.do(req, "stk_push", &out); err != nil {
		log.Error("STK push failed", zap.Error(err))
		return nil, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		err := &GatewayError{Op: "stk_push", StatusCode: http.StatusOK, Code: out.ResponseCode, Message: out.ResponseDescription}
		log.Error("STK push rejected", zap.Error(err))
		return nil, err
	}

	log.Info("STK push accepted",
		zap.String("checkout_request_id", out.CheckoutRequestID),
		zap.String("merchant_request_id", out.MerchantRequestID),
	)
	return &out, nil
}

// ----------------- QueryStatus -----------------

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

func (g *mpesaGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	token, err := g.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := g.timestamp()
	req, err := g.newJSONRequest(ctx, stkQueryPath, token, stkQueryBody{
		BusinessShortCode: g.cfg.Shortcode,
		Password:          g.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return nil, &GatewayError{Op: "stk_query", Err: err}
	}

	var out STKQueryResponse
	if err := g.do(req, "stk_query", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ----------------- helpers -----------------

type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (g *mpesaGateway) newJSONRequest(ctx context.Context, path, token string, body interface{}) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (g *mpesaGateway) do(req *http.Request, op string, out interface{}) error {
	timer := metrics.StartTimer()
	defer timer.ObserveGateway(op)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		gwErr := &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var eb errorBody
		if json.Unmarshal(bodyBytes, &eb) == nil && eb.ErrorCode != "" {
			gwErr.Code = eb.ErrorCode
			gwErr.Message = eb.ErrorMessage
		}
		return gwErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
