package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Заголовки исходящего webhook запроса
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderEventType = "X-Event-Type"
	HeaderServerID  = "X-Server-ID"
)

// SignPayload подпись тела webhook: "sha256=" + hex(HMAC-SHA256(secret, timestamp + "." + body))
func SignPayload(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature проверка на стороне получателя. Подписи старше maxAge отклоняются;
// maxAge <= 0 отключает проверку возраста.
func VerifySignature(secret string, timestamp int64, body []byte, signature string, maxAge time.Duration) bool {
	if maxAge > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > maxAge || age < -maxAge {
			return false
		}
	}
	expected := SignPayload(secret, timestamp, body)
	return hmac.Equal([]byte(signature), []byte(expected))
}
