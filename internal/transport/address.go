package transport

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrNoScope   = errors.New("address needs a document or corpus id")
	ErrBothScope = errors.New("address cannot carry both a document and a corpus id")
)

// Address identifies the conversation scope a socket should attach to: a
// standalone document or a corpus, plus an optional conversation to resume
// and the auth token.
type Address struct {
	BaseURL        string // e.g. wss://api.example.com/ws
	DocumentID     string
	CorpusID       string
	ConversationID string // optional: resume an existing conversation
	AuthToken      string
}

// URL builds the socket URL: path segments for the scope, query parameters
// for the resume id and the token.
func (a Address) URL() (string, error) {
	if a.DocumentID == "" && a.CorpusID == "" {
		return "", ErrNoScope
	}
	if a.DocumentID != "" && a.CorpusID != "" {
		return "", ErrBothScope
	}

	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid socket base url: %w", err)
	}

	if a.DocumentID != "" {
		u = u.JoinPath("document", a.DocumentID)
	} else {
		u = u.JoinPath("corpus", a.CorpusID)
	}

	q := u.Query()
	if a.ConversationID != "" {
		q.Set("load_from_conversation_id", a.ConversationID)
	}
	if a.AuthToken != "" {
		q.Set("token", a.AuthToken)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// TokenExpiry parses the auth token without verifying its signature and
// returns the expiry claim. Verification belongs to the backend; the client
// only wants to warn before dialing with a token that cannot work.
func (a Address) TokenExpiry() (time.Time, bool) {
	if a.AuthToken == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(a.AuthToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
