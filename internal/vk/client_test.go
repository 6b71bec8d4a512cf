package vk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkrelay/internal/poster"
)

type fakeAPI struct {
	calls   atomic.Int32
	handler func(w http.ResponseWriter, r *http.Request)
}

func newFakeAPI(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{handler: h}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		assert.NoError(t, r.ParseForm())
		f.handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(srv *httptest.Server, cred *Credential) *Client {
	return New(Config{BaseURL: srv.URL + "/method", RatePerSec: 1000}, cred)
}

func TestPublishSendsWallPost(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/wall.post", r.URL.Path)
		assert.Equal(t, "-100", r.PostForm.Get("owner_id"))
		assert.Equal(t, "1", r.PostForm.Get("from_group"))
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		assert.Equal(t, "tok", r.PostForm.Get("access_token"))
		assert.Equal(t, DefaultAPIVersion, r.PostForm.Get("v"))
		fmt.Fprint(w, `{"response":{"post_id":55}}`)
	})
	c := newTestClient(srv, NewCredential("tok"))

	h, err := c.Publish(context.Background(), 100, "hello")
	require.NoError(t, err)
	require.Equal(t, int64(55), h.PostID)
	require.Equal(t, "https://vk.com/wall-100_55", h.Locator)
}

func TestRetractSendsWallDelete(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/wall.delete", r.URL.Path)
		assert.Equal(t, "-7", r.PostForm.Get("owner_id"))
		assert.Equal(t, "9", r.PostForm.Get("post_id"))
		fmt.Fprint(w, `{"response":1}`)
	})
	c := newTestClient(srv, NewCredential("tok"))
	require.NoError(t, c.Retract(context.Background(), 7, poster.PostHandle{PostID: 9}))
}

func TestSendMessage(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/messages.send", r.URL.Path)
		assert.Equal(t, "2000000003", r.PostForm.Get("peer_id"))
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		assert.NotEmpty(t, r.PostForm.Get("random_id"))
		fmt.Fprint(w, `{"response":812}`)
	})
	c := newTestClient(srv, NewCredential("tok"))

	h, err := c.Messages().Publish(context.Background(), 2000000003, "hello")
	require.NoError(t, err)
	require.Equal(t, poster.PostHandle{PostID: 812}, h)
}

func TestDeleteMessageForEveryone(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/messages.delete", r.URL.Path)
		assert.Equal(t, "812", r.PostForm.Get("message_ids"))
		assert.Equal(t, "1", r.PostForm.Get("delete_for_all"))
		if r.PostForm.Get("access_token") == "tok" {
			fmt.Fprint(w, `{"response":{"812":1}}`)
			return
		}
		fmt.Fprint(w, `{"response":{"812":0}}`)
	})
	cred := NewCredential("tok")
	c := newTestClient(srv, cred)
	require.NoError(t, c.DeleteMessage(context.Background(), 812))

	cred.Set("other")
	require.ErrorIs(t, c.DeleteMessage(context.Background(), 812), poster.ErrForbidden)
}

func TestMissingCredentialShortCircuits(t *testing.T) {
	api, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"post_id":1}}`)
	})
	cred := NewCredential("tok")
	c := newTestClient(srv, cred)

	_, err := c.Publish(context.Background(), 1, "x")
	require.NoError(t, err)

	// A mid-job clear makes the next call fail without touching the network.
	cred.Clear()
	_, err = c.Publish(context.Background(), 1, "x")
	require.ErrorIs(t, err, poster.ErrUnauthenticated)
	require.ErrorIs(t, c.Retract(context.Background(), 1, poster.PostHandle{PostID: 1}), poster.ErrUnauthenticated)
	require.ErrorIs(t, c.Probe(context.Background()), poster.ErrUnauthenticated)
	require.Equal(t, int32(1), api.calls.Load())
}

func TestAPIErrorMapping(t *testing.T) {
	cases := []struct {
		method string
		code   int
		want   error
	}{
		{methodWallPost, 5, poster.ErrUnauthenticated},
		{methodWallPost, 6, poster.ErrRateLimited},
		{methodWallPost, 9, poster.ErrRateLimited},
		{methodWallPost, 29, poster.ErrRateLimited},
		{methodWallPost, 10, poster.ErrTransport},
		{methodWallPost, 15, poster.ErrRejected},
		{methodWallPost, 214, poster.ErrRejected},
		{methodWallPost, 219, poster.ErrRejected},
		{methodWallPost, 220, poster.ErrRejected},
		{methodWallDelete, 5, poster.ErrUnauthenticated},
		{methodWallDelete, 100, poster.ErrNotFound},
		{methodWallDelete, 104, poster.ErrNotFound},
		{methodWallDelete, 15, poster.ErrForbidden},
		{methodWallDelete, 214, poster.ErrForbidden},
		{methodMessagesSend, 6, poster.ErrRateLimited},
		{methodMessagesSend, 917, poster.ErrRejected},
		{methodMessagesDelete, 5, poster.ErrUnauthenticated},
		{methodMessagesDelete, 100, poster.ErrNotFound},
		{methodMessagesDelete, codeCantDeleteAll, poster.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%d", tc.method, tc.code), func(t *testing.T) {
			_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"error":{"error_code":%d,"error_msg":"nope"}}`, tc.code)
			})
			c := newTestClient(srv, NewCredential("tok"))
			var err error
			switch tc.method {
			case methodWallPost:
				_, err = c.Publish(context.Background(), 1, "x")
			case methodWallDelete:
				err = c.Retract(context.Background(), 1, poster.PostHandle{PostID: 2})
			case methodMessagesSend:
				_, err = c.Messages().Publish(context.Background(), 2000000001, "x")
			case methodMessagesDelete:
				err = c.Messages().Retract(context.Background(), 2000000001, poster.PostHandle{PostID: 2})
			}
			require.ErrorIs(t, err, tc.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tc.code, apiErr.Code)
			require.Equal(t, tc.method, apiErr.Method)
		})
	}
}

func TestTransportFailures(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := newTestClient(srv, NewCredential("tok")).Publish(context.Background(), 1, "x")
		require.ErrorIs(t, err, poster.ErrTransport)
	})
	t.Run("bad json", func(t *testing.T) {
		_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"response":`)
		})
		_, err := newTestClient(srv, NewCredential("tok")).Publish(context.Background(), 1, "x")
		require.ErrorIs(t, err, poster.ErrTransport)
	})
	t.Run("connection refused", func(t *testing.T) {
		_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {})
		c := newTestClient(srv, NewCredential("tok"))
		srv.Close()
		_, err := c.Publish(context.Background(), 1, "x")
		require.ErrorIs(t, err, poster.ErrTransport)
	})
}

func TestValidate(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/account.getInfo", r.URL.Path)
		if r.PostForm.Get("access_token") != "good" {
			fmt.Fprint(w, `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`)
			return
		}
		fmt.Fprint(w, `{"response":{"country":"RU","lang":0}}`)
	})
	cred := NewCredential("")
	c := newTestClient(srv, cred)

	info, err := c.Validate(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "RU", info.Country)

	_, err = c.Validate(context.Background(), "bad")
	require.ErrorIs(t, err, poster.ErrUnauthenticated)

	_, ok := cred.Current()
	require.False(t, ok, "Validate must not touch the credential cell")
}

func TestCredentialMask(t *testing.T) {
	require.Equal(t, "", Mask(""))
	require.Equal(t, "*****", Mask("short"))
	require.Equal(t, "vk1.…wxyz", Mask("vk1.abcdefghwxyz"))

	c := NewCredential("  ")
	require.False(t, c.Info().Set)
	c.Set("vk1.abcdefghwxyz")
	info := c.Info()
	require.True(t, info.Set)
	require.False(t, info.SetAt.IsZero())
}

func TestPostURL(t *testing.T) {
	require.Equal(t, "https://vk.com/wall-5_7", PostURL(5, 7))
	require.Equal(t, "https://vk.com/wall-5_7", PostURL(-5, 7))
}
