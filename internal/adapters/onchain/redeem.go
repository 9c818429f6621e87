package onchain

// redeem.go: gasless CTF redemption through the Polymarket Safe relay.
//
// After a window resolves, winning outcome tokens held by the funder Safe are
// redeemed for USDC.e with redeemPositions(). The call is wrapped in a Safe
// meta-transaction signed by the owner EOA (EIP-712 SafeTx) and posted to the
// relay, which pays the gas.

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/updown/internal/domain"
)

const (
	polygonChainID = int64(137)

	// USDC.e collateral on Polygon
	usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// Default redemption target. The relay forwards the Safe call here.
	defaultRedeemTarget = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	defaultRelayURL = "https://tx-relay.polymarket.com/relay"

	zeroAddress = "0x0000000000000000000000000000000000000000"
)

var (
	ctfABI  abi.ABI
	safeABI abi.ABI

	safeTxTypeHash = crypto.Keccak256Hash([]byte(
		"SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)",
	))
	safeDomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(uint256 chainId,address verifyingContract)",
	))
)

func init() {
	var err error

	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "redeemPositions",
			"type": "function",
			"inputs": [
				{"name": "collateralToken", "type": "address"},
				{"name": "parentCollectionId", "type": "bytes32"},
				{"name": "conditionId", "type": "bytes32"},
				{"name": "indexSets", "type": "uint256[]"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}

	safeABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "nonce",
			"type": "function",
			"constant": true,
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("safe abi parse: " + err.Error())
	}
}

// NonceSource returns the current nonce of a Safe.
type NonceSource interface {
	SafeNonce(ctx context.Context, safe common.Address) (*big.Int, error)
}

// RPCNonceSource reads nonce() from the Safe contract over JSON-RPC.
type RPCNonceSource struct {
	client *ethclient.Client
}

// DialNonceSource connects to the given Polygon RPC.
func DialNonceSource(rpcURL string) (*RPCNonceSource, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc: %w", err)
	}
	return &RPCNonceSource{client: client}, nil
}

// SafeNonce calls nonce() on the Safe.
func (s *RPCNonceSource) SafeNonce(ctx context.Context, safe common.Address) (*big.Int, error) {
	callData, err := safeABI.Pack("nonce")
	if err != nil {
		return nil, err
	}
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &safe, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("call nonce: %w", err)
	}
	vals, err := safeABI.Unpack("nonce", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("unpack nonce: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Close releases the RPC connection.
func (s *RPCNonceSource) Close() {
	s.client.Close()
}

// RedeemConfig holds the relay endpoint and contract addresses.
type RedeemConfig struct {
	RelayURL   string
	Target     string
	Collateral string
	ChainID    int64
}

func (c RedeemConfig) withDefaults() RedeemConfig {
	if c.RelayURL == "" {
		c.RelayURL = defaultRelayURL
	}
	if c.Target == "" {
		c.Target = defaultRedeemTarget
	}
	if c.Collateral == "" {
		c.Collateral = usdcEAddress
	}
	if c.ChainID == 0 {
		c.ChainID = polygonChainID
	}
	return c
}

// relayPayload is the body of POST /relay.
type relayPayload struct {
	Safe           string `json:"safe"`
	To             string `json:"to"`
	Value          string `json:"value"`
	Data           string `json:"data"`
	Operation      int    `json:"operation"`
	SafeTxGas      int    `json:"safeTxGas"`
	BaseGas        int    `json:"baseGas"`
	GasPrice       int    `json:"gasPrice"`
	GasToken       string `json:"gasToken"`
	RefundReceiver string `json:"refundReceiver"`
	Nonce          uint64 `json:"nonce"`
	Signature      string `json:"signature"`
}

// Redeemer implements ports.Redeemer.
type Redeemer struct {
	key        *ecdsa.PrivateKey
	owner      common.Address
	safe       common.Address
	target     common.Address
	collateral common.Address
	chainID    *big.Int
	relayURL   string
	nonces     NonceSource
	http       *http.Client
	now        func() time.Time
}

// NewRedeemer creates a redeemer for the Safe at safeHex owned by privateKeyHex.
func NewRedeemer(privateKeyHex, safeHex string, nonces NonceSource, cfg RedeemConfig) (*Redeemer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("redeem: invalid private key: %w", err)
	}
	if !common.IsHexAddress(safeHex) {
		return nil, fmt.Errorf("redeem: invalid safe address %q", safeHex)
	}
	cfg = cfg.withDefaults()
	return &Redeemer{
		key:        key,
		owner:      crypto.PubkeyToAddress(key.PublicKey),
		safe:       common.HexToAddress(safeHex),
		target:     common.HexToAddress(cfg.Target),
		collateral: common.HexToAddress(cfg.Collateral),
		chainID:    big.NewInt(cfg.ChainID),
		relayURL:   cfg.RelayURL,
		nonces:     nonces,
		http:       &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}, nil
}

// Redeem submits a gasless redeemPositions for both outcome slots of conditionID.
// Every failure is reported as domain.ErrRedemption.
func (r *Redeemer) Redeem(ctx context.Context, conditionID string) (domain.RedeemResult, error) {
	result := domain.RedeemResult{ConditionID: conditionID}

	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return result, domain.NewOpError(domain.ErrRedemption, "redeem: condition id", err)
	}

	callData, err := ctfABI.Pack("redeemPositions",
		r.collateral,
		[32]byte{},
		condBytes,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	)
	if err != nil {
		return result, domain.NewOpError(domain.ErrRedemption, "redeem: pack", err)
	}

	nonce, err := r.nonces.SafeNonce(ctx, r.safe)
	if err != nil {
		return result, domain.NewOpError(domain.ErrRedemption, "redeem: safe nonce", err)
	}
	result.Nonce = nonce.Uint64()

	hash := safeTxHash(r.chainID, r.safe, r.target, callData, nonce)
	sig, err := crypto.Sign(hash.Bytes(), r.key)
	if err != nil {
		return result, domain.NewOpError(domain.ErrRedemption, "redeem: sign", err)
	}
	sig[64] += 27

	payload := relayPayload{
		Safe:           r.safe.Hex(),
		To:             r.target.Hex(),
		Value:          "0",
		Data:           "0x" + hex.EncodeToString(callData),
		Operation:      0,
		GasToken:       zeroAddress,
		RefundReceiver: zeroAddress,
		Nonce:          nonce.Uint64(),
		Signature:      "0x" + hex.EncodeToString(sig),
	}

	txID, err := r.post(ctx, payload)
	if err != nil {
		return result, domain.NewOpError(domain.ErrRedemption, "redeem: relay", err)
	}
	result.RelayTxID = txID
	result.ExecutedAt = r.now().UTC()

	slog.Info("live: redemption relayed",
		"condition", shortID(conditionID),
		"nonce", result.Nonce,
		"relay_tx", txID,
	)
	return result, nil
}

// post sends the payload to the relay. 200 and 201 are success.
func (r *Redeemer) post(ctx context.Context, payload relayPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.relayURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("relay rejected %d: %s", resp.StatusCode, respBody)
	}
	return relayTxID(respBody), nil
}

// relayTxID extracts the transaction id from the relay reply, which may be
// JSON or a bare hash.
func relayTxID(body []byte) string {
	var parsed struct {
		TransactionID   string `json:"transactionID"`
		TransactionHash string `json:"transactionHash"`
		ID              string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, v := range []string{parsed.TransactionID, parsed.TransactionHash, parsed.ID} {
			if v != "" {
				return v
			}
		}
	}
	return strings.Trim(strings.TrimSpace(string(body)), `"`)
}

// safeTxHash computes the EIP-712 digest of a zero-value, zero-gas Safe CALL.
func safeTxHash(chainID *big.Int, safe, to common.Address, data []byte, nonce *big.Int) common.Hash {
	zero := common.LeftPadBytes(nil, 32)

	var structBuf []byte
	structBuf = append(structBuf, safeTxTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(to.Bytes(), 32)...)
	structBuf = append(structBuf, zero...) // value
	structBuf = append(structBuf, crypto.Keccak256(data)...)
	structBuf = append(structBuf, zero...) // operation = CALL
	structBuf = append(structBuf, zero...) // safeTxGas
	structBuf = append(structBuf, zero...) // baseGas
	structBuf = append(structBuf, zero...) // gasPrice
	structBuf = append(structBuf, zero...) // gasToken
	structBuf = append(structBuf, zero...) // refundReceiver
	structBuf = append(structBuf, common.LeftPadBytes(nonce.Bytes(), 32)...)
	structHash := crypto.Keccak256Hash(structBuf)

	var domainBuf []byte
	domainBuf = append(domainBuf, safeDomainTypeHash.Bytes()...)
	domainBuf = append(domainBuf, common.LeftPadBytes(chainID.Bytes(), 32)...)
	domainBuf = append(domainBuf, common.LeftPadBytes(safe.Bytes(), 32)...)
	domainSeparator := crypto.Keccak256Hash(domainBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, domainSeparator.Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	return crypto.Keccak256Hash(rawBuf)
}

// hexToBytes32 converts a 0x-prefixed hex string to [32]byte.
func hexToBytes32(s string) ([32]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return [32]byte{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	return arr, nil
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
