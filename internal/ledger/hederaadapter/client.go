package hederaadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"watergrid-cloud/internal/ledger"
)

// Client is a minimal REST client for a Hedera consensus/token bridge.
// It deliberately knows nothing about transaction encoding or keys; the
// bridge signs and submits on our behalf.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a bridge client.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("hederaadapter: empty base url")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type submitRequest struct {
	Message string `json:"message"`
}

type txResponse struct {
	TransactionID string `json:"transactionId"`
}

type topicMessagesResponse struct {
	Messages []topicMessage `json:"messages"`
}

type topicMessage struct {
	SequenceNumber     int64  `json:"sequence_number"`
	ConsensusTimestamp string `json:"consensus_timestamp"`
	Message            string `json:"message"`
}

type transferRequest struct {
	FromAccount string `json:"fromAccount"`
	ToAccount   string `json:"toAccount"`
	Amount      int64  `json:"amount"`
}

type mintRequest struct {
	Amount int64 `json:"amount"`
}

// Submit broadcasts one message to a topic.
func (c *Client) Submit(ctx context.Context, topicID string, message []byte) (ledger.SubmitResult, error) {
	if topicID == "" {
		return ledger.SubmitResult{}, errors.New("hederaadapter: empty topic id")
	}
	body := submitRequest{Message: base64.StdEncoding.EncodeToString(message)}
	var resp txResponse
	path := "/api/v1/topics/" + topicID + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return ledger.SubmitResult{}, ledger.WrapGatewayError("submit", err)
	}
	return ledger.SubmitResult{TxID: resp.TransactionID}, nil
}

// Poll reads topic messages with sequence number greater than sinceSequence.
// Overlapping re-delivery is permitted; callers dedup by message id.
func (c *Client) Poll(ctx context.Context, topicID string, sinceSequence int64) ([]ledger.TopicMessage, error) {
	if topicID == "" {
		return nil, errors.New("hederaadapter: empty topic id")
	}
	path := fmt.Sprintf("/api/v1/topics/%s/messages?order=asc&sequencenumber=gt:%d", topicID, sinceSequence)
	var resp topicMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, ledger.WrapGatewayError("poll", err)
	}

	messages := make([]ledger.TopicMessage, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ts, err := parseConsensusTimestamp(msg.ConsensusTimestamp)
		if err != nil {
			return nil, ledger.WrapGatewayError("poll", err)
		}
		contents, err := base64.StdEncoding.DecodeString(msg.Message)
		if err != nil {
			return nil, ledger.WrapGatewayError("poll", err)
		}
		messages = append(messages, ledger.TopicMessage{
			TopicID:            topicID,
			SequenceNumber:     msg.SequenceNumber,
			ConsensusTimestamp: ts,
			Contents:           contents,
		})
	}
	return messages, nil
}

// Transfer moves token value between two accounts.
func (c *Client) Transfer(ctx context.Context, tokenID, fromAccount, toAccount string, amount int64) (ledger.TransferResult, error) {
	if tokenID == "" || fromAccount == "" || toAccount == "" {
		return ledger.TransferResult{}, errors.New("hederaadapter: missing transfer identifiers")
	}
	if amount <= 0 {
		return ledger.TransferResult{}, errors.New("hederaadapter: non-positive amount")
	}
	body := transferRequest{FromAccount: fromAccount, ToAccount: toAccount, Amount: amount}
	var resp txResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens/"+tokenID+"/transfers", body, &resp); err != nil {
		return ledger.TransferResult{}, ledger.WrapGatewayError("transfer", err)
	}
	return ledger.TransferResult{TxID: resp.TransactionID}, nil
}

// Mint increases token supply ahead of a distribution.
func (c *Client) Mint(ctx context.Context, tokenID string, amount int64) (ledger.TransferResult, error) {
	if tokenID == "" {
		return ledger.TransferResult{}, errors.New("hederaadapter: empty token id")
	}
	if amount <= 0 {
		return ledger.TransferResult{}, errors.New("hederaadapter: non-positive amount")
	}
	var resp txResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens/"+tokenID+"/mint", mintRequest{Amount: amount}, &resp); err != nil {
		return ledger.TransferResult{}, ledger.WrapGatewayError("mint", err)
	}
	return ledger.TransferResult{TxID: resp.TransactionID}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("hederaadapter: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// parseConsensusTimestamp parses the mirror-node "seconds.nanos" format.
func parseConsensusTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("hederaadapter: empty consensus timestamp")
	}
	parts := strings.SplitN(value, ".", 2)
	seconds, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("hederaadapter: bad consensus timestamp %q", value)
	}
	var nanos int64
	if len(parts) == 2 && parts[1] != "" {
		frac := parts[1]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		for len(frac) < 9 {
			frac += "0"
		}
		nanos, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("hederaadapter: bad consensus timestamp %q", value)
		}
	}
	return time.Unix(seconds, nanos).UTC(), nil
}
