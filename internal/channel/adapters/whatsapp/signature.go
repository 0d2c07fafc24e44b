package whatsapp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"
)

// ValidateSignature checks the X-Twilio-Signature header: the full webhook
// URL concatenated with the sorted form parameters, HMAC-SHA1 signed with the
// account auth token.
func ValidateSignature(url string, params map[string]string, signature, authToken string) bool {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	data.WriteString(url)
	for _, k := range keys {
		data.WriteString(k)
		data.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
