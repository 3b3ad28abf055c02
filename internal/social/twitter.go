package social

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/pkg/config"
)

// MaxPhotosPerPost is the platform limit on images attached to one tweet.
const MaxPhotosPerPost = 4

const (
	mediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	createTweetURL = "https://api.twitter.com/2/tweets"
)

// Payload carries the caption fields for one photo.
type Payload struct {
	SchoolName string
	MealType   string
	PhotoURL   string
	WardenName string
	Timestamp  time.Time
}

// Post identifies a created social media post.
type Post struct {
	ID string `json:"id"`
}

// TwitterClient posts meal photos to a Twitter account using OAuth 1.0a
// user-context credentials. Media upload goes through the v1.1 endpoint,
// tweet creation through v2.
type TwitterClient struct {
	apiKey       string
	apiSecret    string
	accessToken  string
	accessSecret string

	client *http.Client
	logger *zap.Logger

	// endpoint overrides for tests
	uploadURL string
	tweetURL  string
}

// NewTwitterClient builds a client from configuration. A client with an
// incomplete credential set is still returned but reports unavailable.
func NewTwitterClient(cfg config.SocialConfig, logger *zap.Logger) *TwitterClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwitterClient{
		apiKey:       cfg.TwitterAPIKey,
		apiSecret:    cfg.TwitterAPISecret,
		accessToken:  cfg.TwitterAccessToken,
		accessSecret: cfg.TwitterAccessTokenSecret,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
		uploadURL:    mediaUploadURL,
		tweetURL:     createTweetURL,
	}
}

// Available reports whether a full credential set is configured.
func (c *TwitterClient) Available() bool {
	return c != nil && c.apiKey != "" && c.apiSecret != "" && c.accessToken != "" && c.accessSecret != ""
}

// PostOne publishes a single photo with its caption.
func (c *TwitterClient) PostOne(ctx context.Context, p Payload) (*Post, error) {
	if !c.Available() {
		return nil, fmt.Errorf("twitter client not configured")
	}

	mediaID, err := c.uploadImage(ctx, p.PhotoURL)
	if err != nil {
		return nil, err
	}

	text := captionSingle(p)
	return c.createTweet(ctx, text, []string{mediaID})
}

// PostMany publishes up to MaxPhotosPerPost photos as one tweet. The returned
// slice contains one entry, the created tweet, kept as a list so callers can
// treat single and multi posts uniformly.
func (c *TwitterClient) PostMany(ctx context.Context, payloads []Payload) ([]Post, error) {
	if !c.Available() {
		return nil, fmt.Errorf("twitter client not configured")
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no payloads to post")
	}
	if len(payloads) > MaxPhotosPerPost {
		return nil, fmt.Errorf("at most %d photos per post, got %d", MaxPhotosPerPost, len(payloads))
	}

	mediaIDs := make([]string, 0, len(payloads))
	for _, p := range payloads {
		mediaID, err := c.uploadImage(ctx, p.PhotoURL)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	text := captionBatch(payloads)
	post, err := c.createTweet(ctx, text, mediaIDs)
	if err != nil {
		return nil, err
	}
	return []Post{*post}, nil
}

func (c *TwitterClient) uploadImage(ctx context.Context, imageURL string) (string, error) {
	data, err := c.downloadImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("media", "photo.jpg")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", c.authorizationHeader(http.MethodPost, c.uploadURL, nil))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter media upload: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("twitter media upload status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode media upload response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("media upload returned no media id")
	}
	return result.MediaIDString, nil
}

func (c *TwitterClient) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *TwitterClient) createTweet(ctx context.Context, text string, mediaIDs []string) (*Post, error) {
	payload := map[string]interface{}{
		"text": text,
		"media": map[string]interface{}{
			"media_ids": mediaIDs,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tweetURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authorizationHeader(http.MethodPost, c.tweetURL, nil))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create tweet: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create tweet status %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Data Post `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode tweet response: %w", err)
	}
	if result.Data.ID == "" {
		return nil, fmt.Errorf("tweet response missing id")
	}
	return &result.Data, nil
}

// authorizationHeader builds an OAuth 1.0a HMAC-SHA1 Authorization header.
// Multipart and JSON bodies contribute no parameters to the signature base
// string, so only the oauth_* parameters (plus any query params) are signed.
func (c *TwitterClient) authorizationHeader(method, rawURL string, extraParams map[string]string) string {
	oauthParams := map[string]string{
		"oauth_consumer_key":     c.apiKey,
		"oauth_nonce":            nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        fmt.Sprintf("%d", time.Now().Unix()),
		"oauth_token":            c.accessToken,
		"oauth_version":          "1.0",
	}

	params := map[string]string{}
	for k, v := range oauthParams {
		params[k] = v
	}
	for k, v := range extraParams {
		params[k] = v
	}
	if u, err := url.Parse(rawURL); err == nil {
		for k, vs := range u.Query() {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params[k]))
	}
	paramString := strings.Join(pairs, "&")

	baseURL := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		u.RawQuery = ""
		u.Fragment = ""
		baseURL = u.String()
	}
	base := strings.Join([]string{
		strings.ToUpper(method),
		percentEncode(baseURL),
		percentEncode(paramString),
	}, "&")

	signingKey := percentEncode(c.apiSecret) + "&" + percentEncode(c.accessSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	_, _ = mac.Write([]byte(base))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	headerKeys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)

	headerPairs := make([]string, 0, len(headerKeys))
	for _, k := range headerKeys {
		headerPairs = append(headerPairs, fmt.Sprintf(`%s="%s"`, percentEncode(k), percentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(headerPairs, ", ")
}

func nonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// percentEncode implements RFC 3986 encoding as required by OAuth 1.0a.
func percentEncode(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9', b == '-', b == '.', b == '_', b == '~':
			out.WriteByte(b)
		default:
			out.WriteString(fmt.Sprintf("%%%02X", b))
		}
	}
	return out.String()
}

var istZone = time.FixedZone("IST", 5*3600+1800)

func captionSingle(p Payload) string {
	return fmt.Sprintf("🍽️ %s served at %s\n\n📸 Photo by: %s\n📅 %s\n\n%s",
		p.MealType,
		p.SchoolName,
		p.WardenName,
		p.Timestamp.In(istZone).Format("2 Jan 2006, 3:04 PM"),
		hashtags,
	)
}

func captionBatch(payloads []Payload) string {
	first := payloads[0]
	return fmt.Sprintf("🍽️ %s at %s\n\n📸 %d photos by: %s\n📅 %s\n\n%s",
		first.MealType,
		first.SchoolName,
		len(payloads),
		first.WardenName,
		first.Timestamp.In(istZone).Format("2 Jan 2006, 3:04 PM"),
		hashtags,
	)
}

const hashtags = "#MidDayMeal #KarnatakaEducation #FoodSafety #SchoolNutrition #DepartmentOfFood"
