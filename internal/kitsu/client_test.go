package kitsu

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kitsu2sonarr/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var cfg config.Config
	cfg.Kitsu.BaseURL = srv.URL + "/api/edge"
	cfg.Kitsu.TokenURL = srv.URL + "/api/oauth/token"
	cfg.Kitsu.ClientID = "cid"
	cfg.Kitsu.ClientSecret = "secret"
	cfg.Kitsu.TimeoutSeconds = 5
	cfg.Kitsu.PageLimit = 2
	return NewClient(cfg, NilLogger)
}

func TestFetchWatchListFollowsPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/edge/library-entries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", jsonAPIContentType)
		if r.URL.Query().Get("page[offset]") == "2" {
			fmt.Fprint(w, `{"data":[{"id":"3","attributes":{"status":"planned"}}],"links":{}}`)
			return
		}
		assert.Equal(t, "42", r.URL.Query().Get("filter[userId]"))
		assert.Equal(t, "2", r.URL.Query().Get("page[limit]"))
		fmt.Fprintf(w, `{"data":[
			{"id":"1","attributes":{"status":"current"},"relationships":{"media":{"links":{"related":"x/1/media"}}}},
			{"id":"2","attributes":{"status":"dropped"}}
		],"links":{"next":"%s/api/edge/library-entries?filter%%5BuserId%%5D=42&page%%5Blimit%%5D=2&page%%5Boffset%%5D=2"}}`, srvURL)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	var cfg config.Config
	cfg.Kitsu.BaseURL = srv.URL + "/api/edge"
	cfg.Kitsu.PageLimit = 2
	cfg.Kitsu.TimeoutSeconds = 5
	client := NewClient(cfg, NilLogger)

	entries, err := client.FetchWatchList(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, WatchListEntry{ID: "1", Status: StatusCurrent, MediaLink: "x/1/media"}, entries[0])
	assert.Equal(t, StatusDropped, entries[1].Status)
	assert.Equal(t, StatusPlanned, entries[2].Status)
}

func TestFetchWatchListUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.FetchWatchList(context.Background(), "42")
	require.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestFetchMediaUnwrapsData(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edge/library-entries/77/media", r.URL.Path)
		assert.Equal(t, jsonAPIContentType, r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Content-Type"), "body-less GETs carry no Content-Type")
		w.Header().Set("Content-Type", jsonAPIContentType)
		fmt.Fprint(w, `{"data":{"id":"7442","type":"anime","attributes":{"subtype":"TV",
			"titles":{"en":"Attack on Titan","en_jp":"Shingeki no Kyojin","ja_jp":"進撃の巨人"}}}}`)
	}))

	item, err := client.FetchMedia(context.Background(), "77")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "7442", item.ID)
	assert.Equal(t, KindAnime, item.Kind)
	assert.Equal(t, "TV", item.Subtype)

	en, ok := item.Title("en")
	assert.True(t, ok)
	assert.Equal(t, "Attack on Titan", en)
	_, ok = item.Title("en_us")
	assert.False(t, ok)
}

func TestFetchMediaNullData(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null}`)
	}))

	item, err := client.FetchMedia(context.Background(), "77")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestFetchMediaNonSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchMedia(context.Background(), "77")
	require.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestFetchMediaMalformed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[`)
	}))

	_, err := client.FetchMedia(context.Background(), "77")
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestResolveCrossReference(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edge/anime/7442/mappings", r.URL.Path)
		assert.Equal(t, TVDBSeriesSite, r.URL.Query().Get("filter[externalSite]"))
		fmt.Fprint(w, `{"data":[
			{"id":"1","attributes":{"externalSite":"myanimelist/anime","externalId":"16498"}},
			{"id":"2","attributes":{"externalSite":"thetvdb/series","externalId":"267440/series"}}
		]}`)
	}))

	ref, ok, err := client.ResolveCrossReference(context.Background(), "7442")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "267440/series", ref)
}

func TestResolveCrossReferenceAbsent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))

	ref, ok, err := client.ResolveCrossReference(context.Background(), "1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, ref)
}

func TestLoginSetsBearerToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "someone", r.PostForm.Get("username"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer"}`)
	})
	mux.HandleFunc("/api/edge/library-entries", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[]}`)
	})
	client := newTestClient(t, mux)
	client.cfg.Username = "someone"
	client.cfg.Password = "hunter2"

	require.NoError(t, client.Login(context.Background()))
	entries, err := client.FetchWatchList(context.Background(), "42")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoginWithoutCredentialsIsNoop(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	require.NoError(t, client.Login(context.Background()))
}
