// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const kinozalSearchFixture = `<!DOCTYPE html>
<html>
<body>
<table class="t_peer w100p">
<tr class="first">
  <td class="nam"><a href="/details.php?id=1">Начало / Inception / 2010 / BDRip 1080p</a></td>
  <td class="s">14</td>
  <td class="s">9.5 ГБ</td>
  <td class="sl_s">77</td>
  <td class="sl_p">5</td>
</tr>
<tr class="bg">
  <td class="nam"><a href="/details.php?id=2">Начало / Inception / 2010 / WEB-DL 2160p</a></td>
  <td class="s">3</td>
  <td class="s">22.25 ГБ</td>
  <td class="sl_s">41</td>
  <td class="sl_p">11</td>
</tr>
<tr class="first">
  <td class="nam"><a href="/details.php?id=3">Начало / Inception / 2010 / HDTVRip</a></td>
  <td class="s">0</td>
  <td class="s">1.5 ГБ</td>
  <td class="sl_s">2</td>
  <td class="sl_p">0</td>
</tr>
<tr class="bg">
  <td class="nam"><a href="/details.php?id=4">Матрица / The Matrix / 1999 / BDRip</a></td>
  <td class="s">9</td>
  <td class="s">7.5 ГБ</td>
  <td class="sl_s">55</td>
  <td class="sl_p">3</td>
</tr>
</table>
</body>
</html>`

func kinozalDetailFixture(hash string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body>
<div class="content">
<h1>Раздача</h1>
<div class="b_d_h"><ul class="men w200">
<li>Сидов: 77</li>
<li>Инфо хеш: %s</li>
</ul></div>
</div>
</body>
</html>`, hash)
}

func newKinozalTestServer(t *testing.T, loginCount *atomic.Int32, grantCookie bool) *httptest.Server {
	t.Helper()

	encode := func(w http.ResponseWriter, page string) {
		encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte(page))
		require.NoError(t, err)
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write(encoded)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/takelogin.php", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "streambrr", r.PostForm.Get("username"))

		loginCount.Add(1)
		if grantCookie {
			http.SetCookie(w, &http.Cookie{Name: "uid", Value: "42", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "pass", Value: "deadbeef", Path: "/"})
		}
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/browse.php", func(w http.ResponseWriter, r *http.Request) {
		encode(w, kinozalSearchFixture)
	})
	mux.HandleFunc("/details.php", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "1":
			encode(w, kinozalDetailFixture("689b2fe9bbbab7e5e13b7f4fc78a754e2f4a7c87"))
		case "2":
			encode(w, kinozalDetailFixture("aaaa2fe9bbbab7e5e13b7f4fc78a754e2f4a7c87"))
		default:
			encode(w, `<html><body><div class="content">нет данных</div></body></html>`)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		encode(w, `<html><body>ok</body></html>`)
	})

	return httptest.NewServer(mux)
}

func TestKinozalSearch(t *testing.T) {
	var loginCount atomic.Int32
	server := newKinozalTestServer(t, &loginCount, true)
	defer server.Close()

	source, err := NewKinozal(server.URL, "streambrr", "hunter2", 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, "kinozal", source.Name())

	criteria := SearchCriteria{Kind: MediaKindMovie, Title: "Inception", Year: 2010}

	candidates, err := source.Search(context.Background(), criteria)
	require.NoError(t, err)

	// The Matrix row fails the title guard and the third detail page has
	// no hash, leaving two candidates.
	require.Len(t, candidates, 2)

	assert.Equal(t, "689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", candidates[0].InfoHash)
	assert.Equal(t, "Начало / Inception / 2010 / BDRip 1080p", candidates[0].Title)
	assert.Equal(t, "kinozal", candidates[0].Source)
	assert.Equal(t, 77, candidates[0].Seeders)
	assert.Equal(t, int64(9500000000), candidates[0].Size)

	assert.Equal(t, "AAAA2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", candidates[1].InfoHash)
	assert.Equal(t, int64(22250000000), candidates[1].Size)
	assert.Equal(t, 41, candidates[1].Seeders)

	// The session survives across searches, no second login post.
	_, err = source.Search(context.Background(), criteria)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loginCount.Load())
}

func TestKinozalLoginRejected(t *testing.T) {
	var loginCount atomic.Int32
	server := newKinozalTestServer(t, &loginCount, false)
	defer server.Close()

	source, err := NewKinozal(server.URL, "streambrr", "wrong", 10*time.Second)
	require.NoError(t, err)

	_, err = source.Search(context.Background(), SearchCriteria{Kind: MediaKindMovie, Title: "Inception"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestKinozalDetailFetchLimit(t *testing.T) {
	var loginCount atomic.Int32
	var detailFetches atomic.Int32

	encode := func(w http.ResponseWriter, page string) {
		encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte(page))
		require.NoError(t, err)
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write(encoded)
	}

	var rows string
	for i := 0; i < 12; i++ {
		rows += fmt.Sprintf(`<tr class="bg"><td class="nam"><a href="/details.php?id=%d">Inception часть %d / BDRip</a></td><td class="s">1</td><td class="s">1.5 ГБ</td><td class="sl_s">9</td><td class="sl_p">1</td></tr>`, i, i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/takelogin.php", func(w http.ResponseWriter, r *http.Request) {
		loginCount.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "uid", Value: "42", Path: "/"})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/browse.php", func(w http.ResponseWriter, r *http.Request) {
		encode(w, "<html><body><table>"+rows+"</table></body></html>")
	})
	mux.HandleFunc("/details.php", func(w http.ResponseWriter, r *http.Request) {
		detailFetches.Add(1)
		encode(w, kinozalDetailFixture("689b2fe9bbbab7e5e13b7f4fc78a754e2f4a7c87"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		encode(w, "<html><body>ok</body></html>")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	source, err := NewKinozal(server.URL, "streambrr", "hunter2", 10*time.Second)
	require.NoError(t, err)

	candidates, err := source.Search(context.Background(), SearchCriteria{Kind: MediaKindMovie, Title: "Inception"})
	require.NoError(t, err)

	assert.Len(t, candidates, kinozalDetailFetchLimit)
	assert.Equal(t, int32(kinozalDetailFetchLimit), detailFetches.Load())
}
