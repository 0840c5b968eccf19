package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Token is the short-lived channel credential handed out by the token endpoint.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func FetchToken(ctx context.Context, client *http.Client, url string) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Token{}, fmt.Errorf("creating token request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("fetching token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("decoding token: %w", err)
	}
	if tok.Value == "" {
		return Token{}, fmt.Errorf("token endpoint returned an empty token")
	}

	return tok, nil
}
