package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey(testKey, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), strings.TrimPrefix(testKey, "0x"))

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(testKey, "0x"), got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	k, err := LoadKey(KeySource{RawPrivateKey: testKey})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(testKey, "0x"), k)

	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	k, err = LoadKey(KeySource{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(testKey, "0x"), k)

	_, err = LoadKey(KeySource{})
	assert.Error(t, err)
	_, err = LoadKey(KeySource{RawPrivateKey: "0xabc"})
	assert.Error(t, err)
	assert.False(t, KeySource{}.Configured())
}

func recoverAddress(t *testing.T, digest []byte, sigHex string) common.Address {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return ethcrypto.PubkeyToAddress(*pub)
}

func TestSignerAddressAndSignatures(t *testing.T) {
	s, err := NewSigner(testKey, 137, CTFExchange)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	sig, err := s.SignAuth("1700000000", 0)
	require.NoError(t, err)
	structHash := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.Address().Bytes(), 32),
		ethcrypto.Keccak256([]byte("1700000000")),
		make([]byte, 32),
		ethcrypto.Keccak256([]byte(AuthMessage)),
	)
	assert.Equal(t, s.Address(), recoverAddress(t, typedDataHash(s.authDomain, structHash), sig))

	order := OrderPayload{
		Salt: "12345", Maker: testAddress, Signer: testAddress,
		Taker: "0x0000000000000000000000000000000000000000", TokenID: "987654321",
		MakerAmount: "50000000", TakerAmount: "50050050", Expiration: "0", Nonce: "0",
		FeeRateBps: "0", Side: SideBuy, SignatureType: SignatureEOA,
	}
	osig, err := s.SignOrder(order)
	require.NoError(t, err)
	h, err := order.structHash()
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recoverAddress(t, typedDataHash(s.orderDomain, h), osig))

	other, err := NewSigner(testKey, 137, NegRiskExchange)
	require.NoError(t, err)
	osig2, err := other.SignOrder(order)
	require.NoError(t, err)
	assert.NotEqual(t, osig, osig2, "the verifying contract is part of the domain")

	order.TokenID = "not-a-number"
	_, err = s.SignOrder(order)
	assert.Error(t, err)
}

func TestL2Headers(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret-bytes"))
	creds := APICreds{Key: "key-1", Secret: secret, Passphrase: "pass"}
	require.True(t, creds.Valid())

	h := creds.L2Headers(testAddress, "POST", "/order", `{"a":1}`, 1700000000)
	assert.Equal(t, "1700000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, "key-1", h["POLY_API_KEY"])
	assert.Equal(t, "pass", h["POLY_PASSPHRASE"])
	assert.Equal(t, testAddress, h["POLY_ADDRESS"])

	mac := hmac.New(sha256.New, []byte("super-secret-bytes"))
	mac.Write([]byte(`1700000000POST/order{"a":1}`))
	assert.Equal(t, base64.URLEncoding.EncodeToString(mac.Sum(nil)), h["POLY_SIGNATURE"])

	assert.NotContains(t, creds.String(), secret)
	assert.False(t, APICreds{Key: "k"}.Valid())
}
