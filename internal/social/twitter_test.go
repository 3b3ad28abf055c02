package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/meal-photo-api/pkg/config"
)

func testCredentials() config.SocialConfig {
	return config.SocialConfig{
		TwitterAPIKey:            "key",
		TwitterAPISecret:         "key-secret",
		TwitterAccessToken:       "token",
		TwitterAccessTokenSecret: "token-secret",
	}
}

type tweetRequest struct {
	Text  string `json:"text"`
	Media struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media"`
}

type twitterFixture struct {
	client   *TwitterClient
	imageURL string
	tweets   *[]tweetRequest
	uploads  *int
}

// newTwitterFixture stands up fake image, media-upload and tweet endpoints and
// returns a client pointed at them.
func newTwitterFixture(t *testing.T) (twitterFixture, func()) {
	t.Helper()

	var uploads int
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("jpeg-bytes")) //nolint:errcheck
	}))

	uploadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("media"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		uploads++
		fmt.Fprintf(w, `{"media_id_string":"media-%d"}`, uploads)
	}))

	var tweets []tweetRequest
	tweetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req tweetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		tweets = append(tweets, req)
		fmt.Fprintf(w, `{"data":{"id":"tweet-%d"}}`, len(tweets))
	}))

	client := NewTwitterClient(testCredentials(), zap.NewNop())
	client.uploadURL = uploadSrv.URL
	client.tweetURL = tweetSrv.URL

	cleanup := func() {
		imageSrv.Close()
		uploadSrv.Close()
		tweetSrv.Close()
	}
	return twitterFixture{client: client, imageURL: imageSrv.URL, tweets: &tweets, uploads: &uploads}, cleanup
}

func TestTwitterClientAvailability(t *testing.T) {
	assert.True(t, NewTwitterClient(testCredentials(), nil).Available())

	partial := testCredentials()
	partial.TwitterAccessTokenSecret = ""
	assert.False(t, NewTwitterClient(partial, nil).Available())

	assert.False(t, NewTwitterClient(config.SocialConfig{}, nil).Available())
}

func TestTwitterClientPostOne(t *testing.T) {
	fx, cleanup := newTwitterFixture(t)
	defer cleanup()

	ts := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	post, err := fx.client.PostOne(context.Background(), Payload{
		SchoolName: "GHS Mandya",
		MealType:   "Lunch",
		PhotoURL:   fx.imageURL + "/p1.jpg",
		WardenName: "Asha Rao",
		Timestamp:  ts,
	})
	require.NoError(t, err)
	assert.Equal(t, "tweet-1", post.ID)
	assert.Equal(t, 1, *fx.uploads)

	require.Len(t, *fx.tweets, 1)
	tweet := (*fx.tweets)[0]
	assert.Equal(t, []string{"media-1"}, tweet.Media.MediaIDs)
	assert.Contains(t, tweet.Text, "Lunch served at GHS Mandya")
	assert.Contains(t, tweet.Text, "Photo by: Asha Rao")
	// 07:00 UTC is 12:30 PM IST
	assert.Contains(t, tweet.Text, "2 Mar 2026, 12:30 PM")
	assert.Contains(t, tweet.Text, "#MidDayMeal")
}

func TestTwitterClientPostManyBatchesIntoOneTweet(t *testing.T) {
	fx, cleanup := newTwitterFixture(t)
	defer cleanup()

	payloads := make([]Payload, 0, 4)
	for i := 0; i < 4; i++ {
		payloads = append(payloads, Payload{
			SchoolName: "GHS Mandya",
			MealType:   "Breakfast",
			PhotoURL:   fmt.Sprintf("%s/p%d.jpg", fx.imageURL, i+1),
			WardenName: "Asha Rao",
			Timestamp:  time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC),
		})
	}

	posts, err := fx.client.PostMany(context.Background(), payloads)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "tweet-1", posts[0].ID)
	assert.Equal(t, 4, *fx.uploads)

	require.Len(t, *fx.tweets, 1)
	tweet := (*fx.tweets)[0]
	assert.Len(t, tweet.Media.MediaIDs, 4)
	assert.Contains(t, tweet.Text, "4 photos by: Asha Rao")
	assert.Contains(t, tweet.Text, "Breakfast at GHS Mandya")
}

func TestTwitterClientPostManyRejectsOversizedBatch(t *testing.T) {
	client := NewTwitterClient(testCredentials(), zap.NewNop())

	payloads := make([]Payload, MaxPhotosPerPost+1)
	_, err := client.PostMany(context.Background(), payloads)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 4 photos")

	_, err = client.PostMany(context.Background(), nil)
	require.Error(t, err)
}

func TestTwitterClientUnconfiguredRefusesToPost(t *testing.T) {
	client := NewTwitterClient(config.SocialConfig{}, nil)

	_, err := client.PostOne(context.Background(), Payload{})
	require.Error(t, err)

	_, err = client.PostMany(context.Background(), []Payload{{}})
	require.Error(t, err)
}

func TestTwitterClientPropagatesUploadFailure(t *testing.T) {
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("jpeg-bytes")) //nolint:errcheck
	}))
	defer imageSrv.Close()

	uploadSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":[{"message":"media type unrecognized"}]}`, http.StatusBadRequest)
	}))
	defer uploadSrv.Close()

	client := NewTwitterClient(testCredentials(), zap.NewNop())
	client.uploadURL = uploadSrv.URL

	_, err := client.PostOne(context.Background(), Payload{PhotoURL: imageSrv.URL + "/p.jpg"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "abcXYZ019-._~", percentEncode("abcXYZ019-._~"))
	assert.Equal(t, "a%20b", percentEncode("a b"))
	assert.Equal(t, "%26%3D%2B", percentEncode("&=+"))
	assert.Equal(t, "https%3A%2F%2Fapi.twitter.com%2F2%2Ftweets", percentEncode("https://api.twitter.com/2/tweets"))
}

func TestCaptionFormatsInIST(t *testing.T) {
	p := Payload{
		SchoolName: "GHS Mandya",
		MealType:   "Dinner",
		WardenName: "Asha Rao",
		// 14:30 UTC is 8:00 PM IST
		Timestamp: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
	}

	single := captionSingle(p)
	assert.Contains(t, single, "Dinner served at GHS Mandya")
	assert.Contains(t, single, "2 Mar 2026, 8:00 PM")

	batch := captionBatch([]Payload{p, p, p})
	assert.Contains(t, batch, "3 photos by: Asha Rao")
	assert.Contains(t, batch, "Dinner at GHS Mandya")
}

func TestAuthorizationHeaderShape(t *testing.T) {
	client := NewTwitterClient(testCredentials(), nil)

	header := client.authorizationHeader(http.MethodPost, "https://api.twitter.com/2/tweets", nil)
	assert.True(t, strings.HasPrefix(header, "OAuth "))
	assert.Contains(t, header, `oauth_consumer_key="key"`)
	assert.Contains(t, header, `oauth_signature_method="HMAC-SHA1"`)
	assert.Contains(t, header, `oauth_token="token"`)
	assert.Contains(t, header, "oauth_signature=")

	// two headers for the same request differ by nonce/timestamp only
	other := client.authorizationHeader(http.MethodPost, "https://api.twitter.com/2/tweets", nil)
	assert.NotEqual(t, header, other)
}
