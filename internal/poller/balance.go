package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/smartdevs17/coinwatch-gateway/pkg/httpclient"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// BalanceSource reports how much an address has received, in the currency's
// smallest unit
type BalanceSource interface {
	ReceivedByAddress(ctx context.Context, address string, confirmations int) (uint64, error)
}

// BlockchainInfo queries the blockchain.info simple query API
type BlockchainInfo struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewBlockchainInfo creates a balance source rooted at baseURL
func NewBlockchainInfo(baseURL string, timeout time.Duration, retryMax int) *BlockchainInfo {
	return &BlockchainInfo{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: httpclient.New(
			httpclient.WithTimeout(timeout),
			httpclient.WithRetryMax(retryMax),
		),
	}
}

// ReceivedByAddress fetches /q/getreceivedbyaddress/{address}
func (b *BlockchainInfo) ReceivedByAddress(ctx context.Context, address string, confirmations int) (uint64, error) {
	endpoint := fmt.Sprintf("%s/q/getreceivedbyaddress/%s?confirmations=%d",
		b.baseURL, url.PathEscape(address), confirmations)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeInternal, "Failed to create balance request", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeExternalCall, "Balance lookup failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeExternalCall, "Failed to read balance response", err)
	}
	text := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return 0, utils.NewAppError(utils.ErrCodeExternalCall, "Balance lookup failed",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, text))
	}

	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, utils.WrapError(utils.ErrCodeExternalCall, "Unexpected balance response", err)
	}
	return value, nil
}
