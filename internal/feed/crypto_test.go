package feed

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkcs7Pad(b []byte, blockSize int) []byte {
	padLen := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
}

func encryptAESCBC(t *testing.T, plain string, key, iv []byte) string {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out)
}

func randomKeyIV(t *testing.T) (key, iv []byte) {
	t.Helper()
	key = make([]byte, 16)
	iv = make([]byte, aes.BlockSize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	return key, iv
}

func TestDecryptExecutionNoticeRoundTrips(t *testing.T) {
	key, iv := randomKeyIV(t)
	plain := "02^005930^ORD-1^10^71500^093015^2"
	payload := encryptAESCBC(t, plain, key, iv)

	got, err := decryptExecutionNotice(payload, key, iv)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptExecutionNoticeRejectsBadBase64(t *testing.T) {
	key, iv := randomKeyIV(t)
	_, err := decryptExecutionNotice("not-valid-base64!!", key, iv)
	assert.Error(t, err)
}

func TestDecryptExecutionNoticeRejectsEmptyPayload(t *testing.T) {
	key, iv := randomKeyIV(t)
	_, err := decryptExecutionNotice("", key, iv)
	assert.Error(t, err)
}

func TestDecryptExecutionNoticeRejectsUnalignedPayload(t *testing.T) {
	key, iv := randomKeyIV(t)
	_, err := decryptExecutionNotice(base64.StdEncoding.EncodeToString([]byte("not-block-aligned")), key, iv)
	assert.Error(t, err)
}

func TestDecryptExecutionNoticeRejectsBadIVLength(t *testing.T) {
	key, _ := randomKeyIV(t)
	payload := encryptAESCBC(t, "0123456789abcdef", key, make([]byte, aes.BlockSize))
	_, err := decryptExecutionNotice(payload, key, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestUnpadStripsValidPKCS7Padding(t *testing.T) {
	padded := pkcs7Pad([]byte("hello"), aes.BlockSize)
	assert.Equal(t, []byte("hello"), unpad(padded))
}

func TestUnpadToleratesMalformedPadding(t *testing.T) {
	malformed := []byte("hello!!!!!!!!!!\xff")
	assert.Equal(t, malformed, unpad(malformed))
}

func TestUnpadHandlesEmptyInput(t *testing.T) {
	assert.Equal(t, []byte{}, unpad([]byte{}))
}

func TestDecodeHandshakeKeyDecodesBase64(t *testing.T) {
	key, err := decodeHandshakeKey(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef")))
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcdef"), key)
}

func TestDecodeHandshakeKeyRejectsBadBase64(t *testing.T) {
	_, err := decodeHandshakeKey("!!!not-base64!!!")
	assert.Error(t, err)
}
