// Package signature реализует проверку HMAC-подписи входящих вебхуков.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Verifier проверяет подлинность тела вебхука по общему секрету.
type Verifier struct {
	secret []byte
}

// NewVerifier создаёт Verifier с указанным секретом.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify сверяет подпись с HMAC-SHA256 от исходных байтов тела запроса.
// Сравнение выполняется за постоянное время. Пустой секрет или пустая
// подпись всегда дают отказ.
func (v *Verifier) Verify(body []byte, sig string) bool {
	if v == nil || len(v.secret) == 0 || sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sig))
}

// Sign возвращает hex-представление HMAC-SHA256 от тела.
// Используется в тестах и при регистрации вебхука.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateSecret генерирует криптографически случайный секрет из 32 байт
// в hex-кодировке. Секрет создаётся один раз при первом запуске и далее
// не перегенерируется.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
