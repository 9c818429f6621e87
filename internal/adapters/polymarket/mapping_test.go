package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gammaServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchWindow_MapsEvent(t *testing.T) {
	data, err := os.ReadFile("../../../testdata/fixtures/gamma_event_btc_15m.json")
	require.NoError(t, err)

	var gotSlug string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSlug = r.URL.Query().Get("slug")
		w.Write(data)
	}))
	defer srv.Close()

	w, err := newTestClient(nil, srv).FetchWindow(context.Background(), "btc-updown-15m-1740830400")
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.Equal(t, "btc-updown-15m-1740830400", gotSlug)
	assert.Equal(t, "btc-updown-15m-1740830400", w.Slug)
	assert.Equal(t, "0x5f1c3e0c2a9d7b4c8e1f6a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f7", w.ConditionID)
	assert.Equal(t, upToken, w.UpTokenID)
	assert.Equal(t, "52114319501245915516055106046884209969926127482827954674443846427813813222426", w.DownTokenID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 15, 0, 0, time.UTC), w.EndTime)

	_, captured := w.Strike()
	assert.False(t, captured)
}

func TestFetchWindow_OutcomeOrderFollowsLabels(t *testing.T) {
	srv := gammaServer(t, `[{"slug":"s","markets":[{"conditionId":"0xc","acceptingOrders":true,
		"clobTokenIds":"[\"down-id\",\"up-id\"]","outcomes":"[\"Down\",\"Up\"]"}]}]`)

	w, err := newTestClient(nil, srv).FetchWindow(context.Background(), "s")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "up-id", w.UpTokenID)
	assert.Equal(t, "down-id", w.DownTokenID)
}

func TestFetchWindow_NotTradable(t *testing.T) {
	cases := map[string]string{
		"no event":      `[]`,
		"event closed":  `[{"slug":"s","closed":true,"markets":[{"acceptingOrders":true,"clobTokenIds":"[\"a\",\"b\"]","outcomes":"[\"Up\",\"Down\"]"}]}]`,
		"market closed": `[{"slug":"s","markets":[{"closed":true,"acceptingOrders":true,"clobTokenIds":"[\"a\",\"b\"]","outcomes":"[\"Up\",\"Down\"]"}]}]`,
		"not accepting": `[{"slug":"s","markets":[{"acceptingOrders":false,"clobTokenIds":"[\"a\",\"b\"]","outcomes":"[\"Up\",\"Down\"]"}]}]`,
		"no markets":    `[{"slug":"s","markets":[]}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w, err := newTestClient(nil, gammaServer(t, body)).FetchWindow(context.Background(), "s")
			require.NoError(t, err)
			assert.Nil(t, w)
		})
	}
}

func TestFetchWindow_MalformedTokenIDs(t *testing.T) {
	srv := gammaServer(t, `[{"slug":"s","markets":[{"acceptingOrders":true,
		"clobTokenIds":"not-json","outcomes":"[\"Up\",\"Down\"]"}]}]`)

	_, err := newTestClient(nil, srv).FetchWindow(context.Background(), "s")
	assert.Error(t, err)
}

func TestFetchWindow_SingleTokenRejected(t *testing.T) {
	srv := gammaServer(t, `[{"slug":"s","markets":[{"acceptingOrders":true,
		"clobTokenIds":"[\"a\"]","outcomes":"[\"Up\"]"}]}]`)

	_, err := newTestClient(nil, srv).FetchWindow(context.Background(), "s")
	assert.Error(t, err)
}
