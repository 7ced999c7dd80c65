package youtubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// DefaultBaseURL is the YouTube Data API v3 root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

var (
	// ErrMissingToken is returned when a call requires a bearer token and none
	// was supplied.
	ErrMissingToken = errors.New("youtubeapi: missing access token")
	// ErrVideoNotFound is returned when the videos endpoint knows nothing
	// about the requested id.
	ErrVideoNotFound = errors.New("youtubeapi: video not found")
	// ErrNoLiveChat is returned when a video exists but carries no active
	// live chat (not live, or chat disabled).
	ErrNoLiveChat = errors.New("youtubeapi: no active live chat for video")
)

// LiveStreamDetails describes a resolved live stream.
type LiveStreamDetails struct {
	VideoID    string `json:"videoId"`
	LiveChatID string `json:"liveChatId"`
	Title      string `json:"title"`
}

// Author carries the chat-relevant author fields of a live chat message.
type Author struct {
	ChannelID       string `json:"channelId"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl"`
	IsChatOwner     bool   `json:"isChatOwner"`
	IsChatModerator bool   `json:"isChatModerator"`
	IsVerified      bool   `json:"isVerified"`
}

// ChatMessage is a single live chat message as returned by the API.
type ChatMessage struct {
	ID          string `json:"id"`
	PublishedAt string `json:"publishedAt"`
	Text        string `json:"text"`
	Author      Author `json:"author"`
}

// ListPage is one page of live chat messages plus the server's paging and
// pacing hints.
type ListPage struct {
	Items                 []ChatMessage
	NextPageToken         string
	PollingIntervalMillis int
}

// Client talks to the YouTube Data API with a caller-supplied bearer token.
// The zero value is not usable; construct with New.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// New returns a Client against the production API.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    DefaultBaseURL,
	}
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		LiveStreamingDetails struct {
			ActiveLiveChatID string `json:"activeLiveChatId"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

type liveChatMessageResource struct {
	ID      string `json:"id"`
	Snippet struct {
		PublishedAt    string `json:"publishedAt"`
		DisplayMessage string `json:"displayMessage"`
		TextDetails    struct {
			MessageText string `json:"messageText"`
		} `json:"textMessageDetails"`
	} `json:"snippet"`
	AuthorDetails struct {
		ChannelID       string `json:"channelId"`
		DisplayName     string `json:"displayName"`
		ProfileImageURL string `json:"profileImageUrl"`
		IsChatOwner     bool   `json:"isChatOwner"`
		IsChatModerator bool   `json:"isChatModerator"`
		IsVerified      bool   `json:"isVerified"`
	} `json:"authorDetails"`
}

type listMessagesResponse struct {
	NextPageToken         string                    `json:"nextPageToken"`
	PollingIntervalMillis int                       `json:"pollingIntervalMillis"`
	Items                 []liveChatMessageResource `json:"items"`
}

// ResolveLiveChat looks up a video and returns its active live chat id.
func (c *Client) ResolveLiveChat(ctx context.Context, accessToken, videoID string) (LiveStreamDetails, error) {
	if accessToken == "" {
		return LiveStreamDetails{}, ErrMissingToken
	}
	q := url.Values{}
	q.Set("part", "liveStreamingDetails,snippet")
	q.Set("id", videoID)
	var body videosResponse
	if err := c.get(ctx, accessToken, "/videos", q, &body); err != nil {
		return LiveStreamDetails{}, err
	}
	if len(body.Items) == 0 {
		return LiveStreamDetails{}, ErrVideoNotFound
	}
	item := body.Items[0]
	if item.LiveStreamingDetails.ActiveLiveChatID == "" {
		return LiveStreamDetails{}, ErrNoLiveChat
	}
	return LiveStreamDetails{
		VideoID:    item.ID,
		LiveChatID: item.LiveStreamingDetails.ActiveLiveChatID,
		Title:      item.Snippet.Title,
	}, nil
}

// ListMessages fetches one page of live chat messages. An empty pageToken
// requests the first page.
func (c *Client) ListMessages(ctx context.Context, accessToken, liveChatID, pageToken string) (ListPage, error) {
	if accessToken == "" {
		return ListPage{}, ErrMissingToken
	}
	q := url.Values{}
	q.Set("liveChatId", liveChatID)
	q.Set("part", "snippet,authorDetails")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var body listMessagesResponse
	if err := c.get(ctx, accessToken, "/liveChat/messages", q, &body); err != nil {
		return ListPage{}, err
	}
	page := ListPage{
		NextPageToken:         body.NextPageToken,
		PollingIntervalMillis: body.PollingIntervalMillis,
		Items:                 make([]ChatMessage, 0, len(body.Items)),
	}
	for _, it := range body.Items {
		page.Items = append(page.Items, fromResource(it))
	}
	return page, nil
}

// SendMessage posts a text message into the given live chat and returns the
// created message as echoed by the API.
func (c *Client) SendMessage(ctx context.Context, accessToken, liveChatID, text string) (ChatMessage, error) {
	if accessToken == "" {
		return ChatMessage{}, ErrMissingToken
	}
	payload := map[string]any{
		"snippet": map[string]any{
			"liveChatId": liveChatID,
			"type":       "textMessageEvent",
			"textMessageDetails": map[string]any{
				"messageText": text,
			},
		},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("marshal live chat message: %w", err)
	}
	u := c.BaseURL + "/liveChat/messages?part=snippet"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(buf))
	if err != nil {
		return ChatMessage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("send live chat message: %w", err)
	}
	defer resp.Body.Close()
	if err := checkAPIError(resp); err != nil {
		return ChatMessage{}, err
	}
	var res liveChatMessageResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return ChatMessage{}, fmt.Errorf("decode live chat message: %w", err)
	}
	return fromResource(res), nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, q url.Values, out any) error {
	u := c.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("youtube api request: %w", err)
	}
	defer resp.Body.Close()
	if err := checkAPIError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode youtube api response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the API carrying the provider's own
// error message.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube api: %s", e.Message)
}

// checkAPIError surfaces the provider's own error message where one exists,
// so operators see "The live chat is no longer live." instead of a bare 403.
func checkAPIError(resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiMessage(gerr))
		}
		return &APIError{Code: gerr.Code, Message: apiMessage(gerr)}
	}
	return fmt.Errorf("youtube api: %w", err)
}

// ErrUnauthorized marks a 401 from the API, meaning the access token is
// expired or revoked and a refresh should be attempted.
var ErrUnauthorized = errors.New("youtubeapi: unauthorized")

func apiMessage(gerr *googleapi.Error) string {
	if gerr.Message != "" {
		return gerr.Message
	}
	for _, item := range gerr.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return strings.TrimSpace(http.StatusText(gerr.Code))
}

func fromResource(res liveChatMessageResource) ChatMessage {
	text := res.Snippet.TextDetails.MessageText
	if text == "" {
		text = res.Snippet.DisplayMessage
	}
	return ChatMessage{
		ID:          res.ID,
		PublishedAt: res.Snippet.PublishedAt,
		Text:        text,
		Author: Author{
			ChannelID:       res.AuthorDetails.ChannelID,
			DisplayName:     res.AuthorDetails.DisplayName,
			ProfileImageURL: res.AuthorDetails.ProfileImageURL,
			IsChatOwner:     res.AuthorDetails.IsChatOwner,
			IsChatModerator: res.AuthorDetails.IsChatModerator,
			IsVerified:      res.AuthorDetails.IsVerified,
		},
	}
}
