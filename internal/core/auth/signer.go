package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SecretHash computes the Cognito client secret hash for a user: the
// base64-encoded HMAC-SHA256 of username||clientID keyed by the client
// secret. Every challenge response sent to the identity provider must
// carry this value under SECRET_HASH.
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
