package polymarket

// trading.go: live order execution on the Polymarket CLOB.
//
// Implements ports.OrderExecutor. Copy trades are immediate: orders go out as
// FOK so a copy either fills at the quoted ask or not at all.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// clobOrderRequest is the body of POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

const orderTypeFOK = "FOK"

var erc20BalanceOf = mustABI(`[{
	"name":"balanceOf","type":"function",
	"inputs":[{"name":"account","type":"address"}],
	"outputs":[{"name":"","type":"uint256"}]
}]`)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("abi: " + err.Error())
	}
	return parsed
}

// TradingClient implements ports.OrderExecutor.
type TradingClient struct {
	auth *AuthClient
	rpc  *ethclient.Client
}

// NewTradingClient connects to the Polygon RPC used for balance checks.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	return &TradingClient{auth: auth, rpc: rpc}, nil
}

// Close releases the RPC connection.
func (tc *TradingClient) Close() {
	tc.rpc.Close()
}

// PlaceOrder signs req and submits it as a FOK order.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: creds: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(req)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: sign: %w", err)
	}

	side := string(domain.SideBuy)
	if req.Side == domain.SideSell {
		side = string(domain.SideSell)
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          side,
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.apiKey(),
		OrderType: orderTypeFOK,
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("place order: clob rejected: %s", resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		CLOBOrderID: resp.OrderID,
		Status:      resp.Status,
		TakenAmount: parseUSDC(resp.TakingAmount),
		MadeAmount:  parseUSDC(resp.MakingAmount),
	}, nil
}

// GetBalance returns the funder's on-chain collateral (USDC.e) balance.
func (tc *TradingClient) GetBalance(ctx context.Context) (float64, error) {
	callData, err := erc20BalanceOf.Pack("balanceOf", tc.auth.funder)
	if err != nil {
		return 0, fmt.Errorf("get balance: pack: %w", err)
	}

	token := tc.auth.contracts.Collateral
	result, err := tc.rpc.CallContract(ctx, ethereum.CallMsg{To: &token, Data: callData}, nil)
	if err != nil {
		return 0, fmt.Errorf("get balance: rpc call: %w", err)
	}

	vals, err := erc20BalanceOf.Unpack("balanceOf", result)
	if err != nil {
		return 0, fmt.Errorf("get balance: unpack: %w", err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("get balance: empty result")
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("get balance: unexpected type %T", vals[0])
	}
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}

// IsNegRisk reports whether the token's market settles through the NegRisk adapter.
func (tc *TradingClient) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	u := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, url.QueryEscape(tokenID))

	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, u, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}
	return resp.NegRisk, nil
}

// parseUSDC converts a micro-unit string ("1500000") to 1.5.
func parseUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(n), big.NewFloat(1e6)).Float64()
	return f
}
