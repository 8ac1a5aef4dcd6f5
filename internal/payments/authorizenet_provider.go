package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/tradeshop/api/internal/domain"
)

const (
	defaultAuthorizeNetEndpoint = "https://api.authorize.net/xml/v1/request.api"
	authorizeNetResultOK        = "Ok"
	authorizeNetApproved        = "1"
	authorizeNetRefIDLimit      = 20
)

var utf8BOM = []byte("\xef\xbb\xbf")

// AuthorizeNetConfig configures the Authorize.Net direct-capture gateway.
type AuthorizeNetConfig struct {
	LoginID        string
	TransactionKey string
	Endpoint       string
	Timeout        time.Duration
	Clock          func() time.Time
	Logger         Logger
	HTTPClient     *http.Client
}

// AuthorizeNetGateway charges cards synchronously with an auth-capture transaction.
type AuthorizeNetGateway struct {
	client         *http.Client
	endpoint       string
	loginID        string
	transactionKey string
	clock          func() time.Time
	logger         Logger
}

// NewAuthorizeNetGateway constructs the Authorize.Net adapter.
func NewAuthorizeNetGateway(cfg AuthorizeNetConfig) (*AuthorizeNetGateway, error) {
	if strings.TrimSpace(cfg.LoginID) == "" || strings.TrimSpace(cfg.TransactionKey) == "" {
		return nil, errors.New("authorizenet: login id and transaction key are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AuthorizeNetGateway{
		client:         httpClient,
		endpoint:       defaultString(cfg.Endpoint, defaultAuthorizeNetEndpoint),
		loginID:        strings.TrimSpace(cfg.LoginID),
		transactionKey: strings.TrimSpace(cfg.TransactionKey),
		clock:          func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

type anetCreditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode,omitempty"`
}

type anetSetting struct {
	SettingName  string `json:"settingName"`
	SettingValue string `json:"settingValue"`
}

type anetTransactionRequest struct {
	TransactionType string `json:"transactionType"`
	Amount          string `json:"amount"`
	Payment         struct {
		CreditCard anetCreditCard `json:"creditCard"`
	} `json:"payment"`
	Order *struct {
		InvoiceNumber string `json:"invoiceNumber,omitempty"`
		Description   string `json:"description,omitempty"`
	} `json:"order,omitempty"`
	Customer *struct {
		ID string `json:"id,omitempty"`
	} `json:"customer,omitempty"`
	TransactionSettings struct {
		Setting []anetSetting `json:"setting"`
	} `json:"transactionSettings"`
}

type anetEnvelope struct {
	CreateTransactionRequest struct {
		MerchantAuthentication struct {
			Name           string `json:"name"`
			TransactionKey string `json:"transactionKey"`
		} `json:"merchantAuthentication"`
		RefID              string                 `json:"refId,omitempty"`
		TransactionRequest anetTransactionRequest `json:"transactionRequest"`
	} `json:"createTransactionRequest"`
}

type anetMessage struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type anetResponse struct {
	TransactionResponse *struct {
		ResponseCode  string `json:"responseCode"`
		TransID       string `json:"transId"`
		AccountNumber string `json:"accountNumber"`
		AccountType   string `json:"accountType"`
		Errors        []struct {
			ErrorCode string `json:"errorCode"`
			ErrorText string `json:"errorText"`
		} `json:"errors"`
	} `json:"transactionResponse"`
	Messages struct {
		ResultCode string        `json:"resultCode"`
		Message    []anetMessage `json:"message"`
	} `json:"messages"`
}

// Process performs an auth-capture charge. A decline is reported as an unsuccessful result, not an error.
func (g *AuthorizeNetGateway) Process(ctx context.Context, req Request) (Result, error) {
	if g == nil {
		return Result{}, errors.New("authorizenet: gateway is nil")
	}
	if req.Card == nil || strings.TrimSpace(req.Card.Number) == "" || strings.TrimSpace(req.Card.ExpirationDate) == "" {
		return Result{}, ErrCardRequired
	}

	var env anetEnvelope
	body := &env.CreateTransactionRequest
	body.MerchantAuthentication.Name = g.loginID
	body.MerchantAuthentication.TransactionKey = g.transactionKey
	body.RefID = truncate(req.OrderID, authorizeNetRefIDLimit)
	txn := &body.TransactionRequest
	txn.TransactionType = "authCaptureTransaction"
	txn.Amount = req.Amount.StringFixed(2)
	txn.Payment.CreditCard = anetCreditCard{
		CardNumber:     strings.ReplaceAll(strings.TrimSpace(req.Card.Number), " ", ""),
		ExpirationDate: strings.TrimSpace(req.Card.ExpirationDate),
		CardCode:       strings.TrimSpace(req.Card.Code),
	}
	if req.OrderID != "" || req.Description != "" {
		txn.Order = &struct {
			InvoiceNumber string `json:"invoiceNumber,omitempty"`
			Description   string `json:"description,omitempty"`
		}{InvoiceNumber: truncate(req.OrderID, authorizeNetRefIDLimit), Description: truncate(req.Description, 255)}
	}
	if req.UserID != "" {
		txn.Customer = &struct {
			ID string `json:"id,omitempty"`
		}{ID: truncate(req.UserID, authorizeNetRefIDLimit)}
	}
	txn.TransactionSettings.Setting = []anetSetting{{SettingName: "duplicateWindow", SettingValue: "120"}}

	resp, err := g.post(ctx, env)
	if err != nil {
		return Result{}, fmt.Errorf("authorizenet: create transaction: %w", err)
	}

	tr := resp.TransactionResponse
	if resp.Messages.ResultCode != authorizeNetResultOK || tr == nil || tr.ResponseCode != authorizeNetApproved {
		reason := ""
		if tr != nil && len(tr.Errors) > 0 {
			reason = tr.Errors[0].ErrorText
		} else if len(resp.Messages.Message) > 0 {
			reason = resp.Messages.Message[0].Text
		}
		g.logger(ctx, "payments.authorizenet.declined", map[string]any{
			"userId":  req.UserID,
			"orderId": req.OrderID,
			"reason":  reason,
		})
		return Result{Success: false}, nil
	}

	g.logger(ctx, "payments.authorizenet.captured", map[string]any{
		"transactionId": tr.TransID,
		"userId":        req.UserID,
		"orderId":       req.OrderID,
	})
	return Result{
		Success:       true,
		TransactionID: tr.TransID,
		Card: &domain.CardSummary{
			UserID:         req.UserID,
			Brand:          tr.AccountType,
			Last4:          lastFour(tr.AccountNumber, req.Card.Number),
			ExpirationDate: strings.TrimSpace(req.Card.ExpirationDate),
			UpdatedAt:      g.clock(),
		},
	}, nil
}

func (g *AuthorizeNetGateway) post(ctx context.Context, env anetEnvelope) (anetResponse, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return anetResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return anetResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return anetResponse{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, paypalResponseLimit))
	if err != nil {
		return anetResponse{}, err
	}
	if resp.StatusCode >= 300 {
		return anetResponse{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out anetResponse
	if err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &out); err != nil {
		return anetResponse{}, err
	}
	return out, nil
}

func lastFour(masked, number string) string {
	source := strings.TrimSpace(masked)
	if source == "" {
		source = strings.ReplaceAll(strings.TrimSpace(number), " ", "")
	}
	if len(source) <= 4 {
		return source
	}
	return source[len(source)-4:]
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
