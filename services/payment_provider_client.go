// ad-reward-system/services/payment_provider_client.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// PaymentProviderClient talks to the external wallet/identity provider. The
// engine never computes verification itself and never moves currency itself;
// both are the provider's job.
type PaymentProviderClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// TransferResponse is the provider's answer to a payout request. Reference
// is stored on the claim transaction as its external ref.
type TransferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// SessionResponse resolves a wallet session token to its address.
type SessionResponse struct {
	WalletAddress string `json:"wallet_address"`
}

func NewPaymentProviderClient(baseURL, token string) *PaymentProviderClient {
	return &PaymentProviderClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Transfer asks the provider to move currency to the user's wallet and
// returns the provider-assigned reference.
func (c *PaymentProviderClient) Transfer(wallet string, amount float64, currency string) (*TransferResponse, error) {
	url := fmt.Sprintf("%s/payments/transfer", c.BaseURL)

	reqBody := map[string]interface{}{
		"wallet_address": wallet,
		"amount":         amount,
		"currency":       currency,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("PaymentProvider /transfer returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("provider transfer failed: %d", resp.StatusCode)
	}

	var out TransferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// ValidateSession resolves a wallet session token (from query params on SSE
// connections, which cannot carry headers) to the wallet it belongs to.
func (c *PaymentProviderClient) ValidateSession(sessionToken string) (*SessionResponse, error) {
	url := fmt.Sprintf("%s/auth/validate", c.BaseURL)

	reqBody := map[string]interface{}{
		"session_token": sessionToken,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Printf("PaymentProvider /auth/validate returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("session validation failed: %d", resp.StatusCode)
	}

	var out SessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
