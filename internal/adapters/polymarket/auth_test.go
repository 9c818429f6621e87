package polymarket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updown/internal/domain"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestOrderAmounts_Buy(t *testing.T) {
	// 1 USDC a 0.69 → 1.44 shares; 1.44 × 0.69 = 0.9936 USDC
	maker, taker, err := orderAmounts(domain.SideBuy, 0.69, 1.0)
	require.NoError(t, err)
	assert.Equal(t, int64(993600), maker)
	assert.Equal(t, int64(1440000), taker)
}

func TestOrderAmounts_Sell(t *testing.T) {
	maker, taker, err := orderAmounts(domain.SideSell, 0.80, 1.449275)
	require.NoError(t, err)
	assert.Equal(t, int64(1440000), maker, "shares go out")
	assert.Equal(t, int64(1152000), taker, "USDC comes in")
}

func TestOrderAmounts_FinerTick(t *testing.T) {
	maker, taker, err := orderAmounts(domain.SideBuy, 0.673, 10)
	require.NoError(t, err)
	// floor(10/0.673*100) = 1485 cents of shares; 1485 × 673 × 10
	assert.Equal(t, int64(9994050), maker)
	assert.Equal(t, int64(14850000), taker)
}

func TestOrderAmounts_TooSmall(t *testing.T) {
	_, _, err := orderAmounts(domain.SideSell, 0.5, 0.001)
	assert.Error(t, err)
}

func TestBuildSignedOrder_SideAndSigner(t *testing.T) {
	ac, err := NewAuthClient("", "", testKey, "")
	require.NoError(t, err)

	signed, err := ac.buildSignedOrder("123456", domain.SideSell, 0.80, 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), signed.Order.Side.Int64(), "SELL")
	assert.Equal(t, int64(0), signed.Order.SignatureType.Int64(), "EOA")
	assert.Equal(t, ac.Address(), signed.Order.Maker.Hex())
	assert.Equal(t, "2000000", signed.Order.MakerAmount.String())
	assert.Len(t, signed.Signature, 65)
}

func TestBuildSignedOrder_FunderUsesSafeSignature(t *testing.T) {
	funder := "0x1111111111111111111111111111111111111111"
	ac, err := NewAuthClient("", "", "0x"+testKey, funder)
	require.NoError(t, err)

	signed, err := ac.buildSignedOrder("123456", domain.SideBuy, 0.5, 1, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), signed.Order.Side.Int64(), "BUY")
	assert.Equal(t, int64(2), signed.Order.SignatureType.Int64(), "POLY_GNOSIS_SAFE")
	assert.Equal(t, funder, signed.Order.Maker.Hex())
	assert.Equal(t, ac.Address(), signed.Order.Signer.Hex())
}

func TestNewAuthClient_RejectsBadInput(t *testing.T) {
	_, err := NewAuthClient("", "", "zz", "")
	assert.Error(t, err)

	_, err = NewAuthClient("", "", testKey, "not-an-address")
	assert.Error(t, err)
}

func TestL2Headers_HMAC(t *testing.T) {
	ac, err := NewAuthClient("", "", testKey, "")
	require.NoError(t, err)
	ac.now = func() time.Time { return time.Unix(1740830400, 0) }

	_, err = ac.l2Headers("POST", "/order", "{}")
	assert.Error(t, err, "no creds yet")

	secret := base64.URLEncoding.EncodeToString([]byte("s3cr3t"))
	ac.creds = &apiCredentials{APIKey: "key", Secret: secret, Passphrase: "pp"}

	h, err := ac.l2Headers("post", "/order", `{"a":1}`)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("s3cr3t"))
	mac.Write([]byte(`1740830400POST/order{"a":1}`))
	assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), h["POLY_SIGNATURE"])
	assert.Equal(t, "1740830400", h["POLY_TIMESTAMP"])
	assert.Equal(t, "key", h["POLY_API_KEY"])
	assert.Equal(t, "pp", h["POLY_PASSPHRASE"])
	assert.Equal(t, ac.Address(), h["POLY_ADDRESS"])
}

func TestSignClobAuth_Format(t *testing.T) {
	ac, err := NewAuthClient("", "", testKey, "")
	require.NoError(t, err)

	sig, err := ac.signClobAuth("1740830400", "0")
	require.NoError(t, err)
	assert.Len(t, sig, 2+130)
	last := sig[len(sig)-2:]
	assert.Contains(t, []string{"1b", "1c"}, last, "v is 27 or 28")

	_, err = ac.signClobAuth("1740830400", "x")
	assert.Error(t, err)
}
