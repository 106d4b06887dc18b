package polymarket

// auth.go: authenticated CLOB access for live copy trading.
//
//   L1: EIP-712 ClobAuth signature with the wallet key → derive API credentials
//   L2: HMAC-SHA256 over ts+method+path+body on every authenticated request
//
// Orders are signed with go-order-utils. When a funder (Polymarket proxy wallet)
// is configured the order's maker is the funder and the signature type is POLY_PROXY.

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/config"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	// zero taker = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// CLOB amounts are 6-decimal fixed point
	microUnits = int64(1_000_000)
)

type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// AuthClient adds L1/L2 auth and order signing on top of Client.
type AuthClient struct {
	*Client
	privateKey    *ecdsa.PrivateKey
	signer        common.Address
	funder        common.Address
	signatureType gomodel.SignatureType
	contracts     *config.Contracts
	orderBuilder  builder.ExchangeOrderBuilder

	credsMu sync.Mutex
	creds   *apiCredentials
}

// NewAuthClient builds a signing client around base. privateKeyHex may carry a 0x
// prefix. funderHex is optional; empty means the signer holds the funds (EOA).
func NewAuthClient(base *Client, privateKeyHex, funderHex string) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}

	contracts, err := config.GetContracts(polygonChainID)
	if err != nil {
		return nil, fmt.Errorf("auth: get contracts: %w", err)
	}

	signer := crypto.PubkeyToAddress(key.PublicKey)
	funder := signer
	sigType := gomodel.EOA
	if funderHex != "" {
		if !common.IsHexAddress(funderHex) {
			return nil, fmt.Errorf("auth: invalid funder address %q", funderHex)
		}
		funder = common.HexToAddress(funderHex)
		sigType = gomodel.POLY_PROXY
	}

	return &AuthClient{
		Client:        base,
		privateKey:    key,
		signer:        signer,
		funder:        funder,
		signatureType: sigType,
		contracts:     contracts,
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address returns the signer address.
func (ac *AuthClient) Address() string {
	return ac.signer.Hex()
}

// Funder returns the address whose USDC pays for orders.
func (ac *AuthClient) Funder() common.Address {
	return ac.funder
}

// EnsureCreds derives API credentials once and caches them.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	ac.credsMu.Lock()
	defer ac.credsMu.Unlock()
	if ac.creds != nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, "0")
	if err != nil {
		return fmt.Errorf("auth: sign l1: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("auth: derive-api-key request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", ac.signer.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth: derive-api-key: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: derive-api-key status %d: %s", resp.StatusCode, body)
	}

	var creds apiCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return fmt.Errorf("auth: parse creds: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return fmt.Errorf("auth: derive-api-key returned empty credentials")
	}
	ac.creds = &creds
	return nil
}

func (ac *AuthClient) apiKey() string {
	ac.credsMu.Lock()
	defer ac.credsMu.Unlock()
	if ac.creds == nil {
		return ""
	}
	return ac.creds.APIKey
}

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
	clobAuthDomainSeparator = func() common.Hash {
		var buf []byte
		buf = append(buf, eip712DomainTypeHash.Bytes()...)
		buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
		buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
		buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
		return crypto.Keccak256Hash(buf)
	}()
)

// signClobAuth signs the ClobAuth typed data with the signer key.
func (ac *AuthClient) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(ac.signer.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	raw := append([]byte{0x19, 0x01}, clobAuthDomainSeparator.Bytes()...)
	raw = append(raw, structHash.Bytes()...)

	sig, err := crypto.Sign(crypto.Keccak256(raw), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return fmt.Sprintf("0x%x", sig), nil
}

// l2Headers builds the HMAC headers for one authenticated call.
func (ac *AuthClient) l2Headers(method, path, body string) (http.Header, error) {
	ac.credsMu.Lock()
	creds := ac.creds
	ac.credsMu.Unlock()
	if creds == nil {
		return nil, fmt.Errorf("auth: credentials not derived yet")
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	secret, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth: decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + strings.ToUpper(method) + path + body))

	h := make(http.Header)
	h.Set("POLY_ADDRESS", ac.signer.Hex())
	h.Set("POLY_SIGNATURE", base64.URLEncoding.EncodeToString(mac.Sum(nil)))
	h.Set("POLY_TIMESTAMP", ts)
	h.Set("POLY_API_KEY", creds.APIKey)
	h.Set("POLY_PASSPHRASE", creds.Passphrase)
	return h, nil
}

// doL2 runs an authenticated request. Headers are rebuilt per attempt so the
// timestamp stays inside the server's window.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	var body string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = string(b)
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ac.clobLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		headers, err := ac.l2Headers(method, path, body)
		if err != nil {
			return err
		}

		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, r)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header = headers
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := ac.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			ac.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			ac.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			if attempt == maxRetries {
				return fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			}
			ac.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("client error %d: %s", resp.StatusCode, respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// buildSignedOrder signs an order for req. req.Size is in shares.
func (ac *AuthClient) buildSignedOrder(req domain.PlaceOrderRequest) (*gomodel.SignedOrder, error) {
	makerAmt, takerAmt, err := orderAmounts(req.Side, req.Price, req.Size)
	if err != nil {
		return nil, err
	}

	side := gomodel.BUY
	if req.Side == domain.SideSell {
		side = gomodel.SELL
	}
	contract := gomodel.CTFExchange
	if req.NegRisk {
		contract = gomodel.NegRiskCTFExchange
	}

	data := &gomodel.OrderData{
		Maker:         ac.funder.Hex(),
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   strconv.FormatInt(makerAmt, 10),
		TakerAmount:   strconv.FormatInt(takerAmt, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.signer.Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: ac.signatureType,
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, data, contract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// orderAmounts converts price and shares into CLOB maker/taker amounts with
// integer math. The CLOB checks makerAmount == price × takerAmount exactly, so
// shares are floored to cents and price is scaled by its tick precision.
// BUY gives USDC and takes shares; SELL is the reverse.
func orderAmounts(side domain.Side, price, shares float64) (maker, taker int64, err error) {
	if price <= 0 || price >= 1 {
		return 0, 0, fmt.Errorf("invalid price %.4f", price)
	}
	prec := detectPricePrecision(price)
	priceInt := int64(math.Round(price * float64(prec)))
	sharesCents := int64(math.Floor(shares*100 + 1e-9))

	usdc := sharesCents * priceInt * (microUnits / (100 * prec))
	qty := sharesCents * (microUnits / 100)
	if usdc <= 0 || qty <= 0 {
		return 0, 0, fmt.Errorf("invalid amounts for price=%.4f shares=%.4f", price, shares)
	}

	if side == domain.SideSell {
		return qty, usdc, nil
	}
	return usdc, qty, nil
}

// detectPricePrecision returns the multiplier for the price's tick size:
// 0.60 → 100, 0.673 → 1000, 0.6731 → 10000.
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}
