package score

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
)

// scoreKeyPrefix combines with the client version into the submission
// cipher key. The key is clamped to 32 bytes for AES-256.
const scoreKeyPrefix = "osu!-scoreburgr---------"

func submissionKey(osuVer string) []byte {
	key := make([]byte, 32)
	copy(key, scoreKeyPrefix+osuVer)
	return key
}

// decryptSubmission decodes and decrypts the submission payload into
// its colon-separated fields.
func decryptSubmission(scoreB64, ivB64, osuVer string) ([]string, error) {
	data, err := base64.StdEncoding.DecodeString(scoreB64)
	if err != nil {
		return nil, fmt.Errorf("decode score payload: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("payload length %d is not a whole number of blocks", len(data))
	}

	block, err := aes.NewCipher(submissionKey(osuVer))
	if err != nil {
		return nil, fmt.Errorf("build cipher: %w", err)
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(data, data)

	return strings.Split(string(stripPadding(data)), ":"), nil
}

// stripPadding removes PKCS#7 padding when well formed, falling back to
// trimming trailing NULs.
func stripPadding(data []byte) []byte {
	if n := int(data[len(data)-1]); n >= 1 && n <= aes.BlockSize && n <= len(data) {
		ok := true
		for _, b := range data[len(data)-n:] {
			if int(b) != n {
				ok = false
				break
			}
		}
		if ok {
			return data[:len(data)-n]
		}
	}
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return data
}
