// Package history fetches a conversation's persisted messages from the
// GraphQL backend. It is an external collaborator of the reconciliation
// engine: the controller consumes the records, it never writes them back.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eternisai/enchanted-client/internal/protocol"
)

// Record is one persisted chat message. State mirrors the message lifecycle;
// a record persisted mid-stream keeps `in_progress` or `awaiting_approval`
// so a reload does not present it as finished.
type Record struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Data      RecordData `json:"data"`
}

// RecordData is the auxiliary payload stored alongside a message.
type RecordData struct {
	Sources         []protocol.RawSource      `json:"sources,omitempty"`
	Timeline        []protocol.TimelineRecord `json:"timeline,omitempty"`
	PendingToolCall *protocol.ToolCall        `json:"pending_tool_call,omitempty"`
	State           string                    `json:"state,omitempty"`
}

type Client struct {
	endpoint   string
	authToken  string
	pageSize   int
	httpClient *http.Client
}

func NewClient(endpoint, authToken string, pageSize int, timeout time.Duration) *Client {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Client{
		endpoint:   endpoint,
		authToken:  authToken,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type messagesResponse struct {
	Data struct {
		ConversationMessages struct {
			Nodes    []Record `json:"nodes"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"conversationMessages"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch returns every persisted message of a conversation in display order,
// walking pagination until exhausted.
func (c *Client) Fetch(ctx context.Context, conversationID string) ([]Record, error) {
	query := `
		query ConversationMessages($conversationId: ID!, $first: Int!, $after: String) {
			conversationMessages(conversationId: $conversationId, first: $first, after: $after) {
				nodes {
					id
					role
					content
					createdAt
					data
				}
				pageInfo {
					hasNextPage
					endCursor
				}
			}
		}
	`

	var records []Record
	cursor := ""

	for {
		variables := map[string]any{
			"conversationId": conversationID,
			"first":          c.pageSize,
		}
		if cursor != "" {
			variables["after"] = cursor
		}

		page, err := c.post(ctx, graphqlRequest{Query: query, Variables: variables})
		if err != nil {
			return nil, err
		}

		records = append(records, page.Data.ConversationMessages.Nodes...)

		if !page.Data.ConversationMessages.PageInfo.HasNextPage {
			return records, nil
		}
		cursor = page.Data.ConversationMessages.PageInfo.EndCursor
	}
}

func (c *Client) post(ctx context.Context, reqBody graphqlRequest) (*messagesResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create history request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call history API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("history API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var page messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}

	if len(page.Errors) > 0 {
		return nil, fmt.Errorf("history API error: %s", page.Errors[0].Message)
	}

	return &page, nil
}
