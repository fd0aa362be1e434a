package feed

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// decryptExecutionNotice reverses the AES-CBC-128 encryption the stream
// handshake negotiates for execution-notice payloads: the control-frame
// subscription ack carries a base64 key/iv pair, and each subsequent
// execution-notice frame is base64 ciphertext under that key.
func decryptExecutionNotice(payloadB64 string, key, iv []byte) (string, error) {
	cipherText, err := base64.StdEncoding.DecodeString(payloadB64)
	if err != nil {
		return "", fmt.Errorf("feed: decode execution payload: %w", err)
	}
	if len(cipherText) == 0 {
		return "", fmt.Errorf("feed: empty execution payload")
	}
	if len(cipherText)%aes.BlockSize != 0 {
		return "", fmt.Errorf("feed: execution payload not block-aligned")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("feed: aes cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("feed: bad iv length %d", len(iv))
	}

	plain := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, cipherText)
	return string(unpad(plain)), nil
}

// unpad strips PKCS#7 padding, tolerating malformed padding rather than
// panicking (the frame parser must never crash on a bad frame).
func unpad(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	padLen := int(b[len(b)-1])
	if padLen <= 0 || padLen > len(b) || padLen > aes.BlockSize {
		return b
	}
	if !bytes.Equal(b[len(b)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return b
	}
	return b[:len(b)-padLen]
}

// decodeHandshakeKey decodes the base64 key/iv pair carried in the
// subscription ack's control-frame output.
func decodeHandshakeKey(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
