package evolution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client represents the HTTP client for the Evolution API gateway
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Evolution API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientFromEnv creates a client configured from environment variables
func NewClientFromEnv() (*Client, error) {
	baseURL := os.Getenv("EVOLUTION_API_URL")
	apiKey := os.Getenv("EVOLUTION_API_KEY")
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("evolution API credentials missing (EVOLUTION_API_URL, EVOLUTION_API_KEY)")
	}
	return NewClient(baseURL, apiKey), nil
}

// Chat represents one entry of the gateway chat list
type Chat struct {
	ID                   string    `json:"id"`
	RemoteJid            string    `json:"remoteJid"`
	Name                 string    `json:"name"`
	PushName             string    `json:"pushName"`
	ProfilePicURL        string    `json:"profilePicUrl"`
	LastMessageTimestamp Timestamp `json:"lastMessageTimestamp"`
	UpdatedAt            string    `json:"updatedAt"`
}

// JID returns the chat address, whichever field the endpoint populated
func (c Chat) JID() string {
	if c.RemoteJid != "" {
		return c.RemoteJid
	}
	return c.ID
}

// DisplayName returns the best available name for the chat
func (c Chat) DisplayName() string {
	if c.PushName != "" {
		return c.PushName
	}
	return c.Name
}

// MessageKey identifies a message on the gateway side
type MessageKey struct {
	ID        string `json:"id"`
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// ExtendedText carries quoted/forwarded text content
type ExtendedText struct {
	Text string `json:"text"`
}

// MediaContent is the common shape of image/video/audio/sticker payloads
type MediaContent struct {
	Caption  string `json:"caption"`
	MimeType string `json:"mimetype"`
	URL      string `json:"url"`
}

// DocumentContent is the document payload shape
type DocumentContent struct {
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimetype"`
	URL      string `json:"url"`
}

// ContactCard is the contact-card payload shape
type ContactCard struct {
	DisplayName string `json:"displayName"`
	VCard       string `json:"vcard"`
}

// LocationContent is the location payload shape
type LocationContent struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"degreesLatitude"`
	Longitude float64 `json:"degreesLongitude"`
}

// MessageContent holds the per-type message body. Exactly one field is
// expected to be set; unknown/system types arrive as raw presence markers.
type MessageContent struct {
	Conversation        string           `json:"conversation"`
	ExtendedTextMessage *ExtendedText    `json:"extendedTextMessage"`
	ImageMessage        *MediaContent    `json:"imageMessage"`
	VideoMessage        *MediaContent    `json:"videoMessage"`
	AudioMessage        *MediaContent    `json:"audioMessage"`
	StickerMessage      *MediaContent    `json:"stickerMessage"`
	DocumentMessage     *DocumentContent `json:"documentMessage"`
	ContactMessage      *ContactCard     `json:"contactMessage"`
	LocationMessage     *LocationContent `json:"locationMessage"`
	ReactionMessage     json.RawMessage  `json:"reactionMessage"`
	ProtocolMessage     json.RawMessage  `json:"protocolMessage"`
	PollCreationMessage json.RawMessage  `json:"pollCreationMessage"`
}

// RawMessage is one message as returned by the gateway, before normalization
type RawMessage struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName"`
	MessageTimestamp Timestamp       `json:"messageTimestamp"`
	Message          *MessageContent `json:"message"`
}

// SendTextResponse is the gateway response to a text send
type SendTextResponse struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}

// MediaPayload is the base64 media response used by media repair
type MediaPayload struct {
	Base64   string `json:"base64"`
	MimeType string `json:"mimetype"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// Group represents gateway group metadata
type Group struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Size         int           `json:"size"`
	Participants []Participant `json:"participants"`
}

// Participant represents one group member
type Participant struct {
	ID    string `json:"id"`
	Admin string `json:"admin"`
}

// FindChats lists all chats known to the instance
func (c *Client) FindChats(ctx context.Context, instance string) ([]Chat, error) {
	body, err := c.post(ctx, fmt.Sprintf("/chat/findChats/%s", instance), map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var chats []Chat
	if err := json.Unmarshal(body, &chats); err != nil {
		// Some gateway versions wrap the list in a data envelope
		var wrapped struct {
			Data []Chat `json:"data"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to decode chat list: %w", err)
		}
		chats = wrapped.Data
	}

	return chats, nil
}

// FindMessages fetches messages for a chat via the primary endpoint
func (c *Client) FindMessages(ctx context.Context, instance, remoteJid string, limit int) ([]RawMessage, error) {
	request := map[string]interface{}{
		"where": map[string]interface{}{
			"key": map[string]interface{}{
				"remoteJid": remoteJid,
			},
		},
		"limit": limit,
	}

	body, err := c.post(ctx, fmt.Sprintf("/chat/findMessages/%s", instance), request)
	if err != nil {
		return nil, err
	}

	return ParseMessageList(body)
}

// FetchMessages fetches messages via the legacy endpoint, used as fallback
// when findMessages fails or returns nothing
func (c *Client) FetchMessages(ctx context.Context, instance, remoteJid string, limit int) ([]RawMessage, error) {
	request := map[string]interface{}{
		"remoteJid": remoteJid,
		"count":     limit,
	}

	body, err := c.post(ctx, fmt.Sprintf("/chat/fetchMessages/%s", instance), request)
	if err != nil {
		return nil, err
	}

	return ParseMessageList(body)
}

// ConnectionState returns the connection status string of an instance
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/instance/connectionState/%s", c.baseURL, instance), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get connection state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("evolution API returned status %d", resp.StatusCode)
	}

	var response struct {
		Instance struct {
			InstanceName string `json:"instanceName"`
			State        string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Instance.State != "" {
		return response.Instance.State, nil
	}
	return response.State, nil
}

// SendText sends a text message to a number or JID
func (c *Client) SendText(ctx context.Context, instance, number, text string) (*SendTextResponse, error) {
	request := map[string]interface{}{
		"number": number,
		"text":   text,
	}

	body, err := c.post(ctx, fmt.Sprintf("/message/sendText/%s", instance), request)
	if err != nil {
		return nil, err
	}

	var response SendTextResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode send response: %w", err)
	}

	return &response, nil
}

// GetBase64FromMediaMessage retrieves the media binary for a message while
// the gateway still retains it
func (c *Client) GetBase64FromMediaMessage(ctx context.Context, instance, messageID string) (*MediaPayload, error) {
	request := map[string]interface{}{
		"message": map[string]interface{}{
			"key": map[string]interface{}{
				"id": messageID,
			},
		},
		"convertToMp4": false,
	}

	body, err := c.post(ctx, fmt.Sprintf("/chat/getBase64FromMediaMessage/%s", instance), request)
	if err != nil {
		return nil, err
	}

	var payload MediaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode media payload: %w", err)
	}
	if payload.Base64 == "" {
		return nil, fmt.Errorf("media payload is empty")
	}

	return &payload, nil
}

// FetchAllGroups lists the groups the instance participates in
func (c *Client) FetchAllGroups(ctx context.Context, instance string, getParticipants bool) ([]Group, error) {
	path := fmt.Sprintf("/group/fetchAllGroups/%s?getParticipants=%t", instance, getParticipants)
	body, err := c.post(ctx, path, map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var groups []Group
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode group list: %w", err)
	}

	return groups, nil
}

// GroupParticipants lists the members of a group
func (c *Client) GroupParticipants(ctx context.Context, instance, groupJid string) ([]Participant, error) {
	request := map[string]interface{}{
		"groupJid": groupJid,
	}

	body, err := c.post(ctx, fmt.Sprintf("/group/participants/%s", instance), request)
	if err != nil {
		return nil, err
	}

	var response struct {
		Participants []Participant `json:"participants"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}

	return response.Participants, nil
}

// post executes an authenticated POST and returns the raw response body
func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("evolution API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}
