// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/autobrr/streambrr/internal/quality"
)

const nnmclubSearchFixture = `<!DOCTYPE html>
<html>
<body>
<table class="forumline tablesorter">
<tr class="prow1">
  <td class="row1"><span class="gen">Кино</span></td>
  <td class="row4 med"><a class="topictitle" href="viewtopic.php?t=100500">Начало / Inception (2010) BDRip 1080p</a></td>
  <td class="row4 small"><a href="download.php?id=100500">Скачать</a><br /><a href="magnet:?xt=urn:btih:689b2fe9bbbab7e5e13b7f4fc78a754e2f4a7c87&amp;dn=x">Magnet</a></td>
  <td class="row4 small nowrap"><u>10200547328</u>9.5&nbsp;ГБ</td>
  <td class="row4 seedmed"><b>150</b></td>
  <td class="row4 leechmed"><b>12</b></td>
  <td class="row4 small nowrap"><u>1736035200</u>05-Янв-25</td>
</tr>
<tr class="prow2">
  <td class="row1"><span class="gen">Кино</span></td>
  <td class="row4 med"><a class="topictitle" href="viewtopic.php?t=100501">Матрица / The Matrix (1999) WEB-DL 720p</a></td>
  <td class="row4 small"><a href="download.php?id=100501">Скачать</a><br /><a href="magnet:?xt=urn:btih:aaaa2fe9bbbab7e5e13b7f4fc78a754e2f4a7c87&amp;dn=y">Magnet</a></td>
  <td class="row4 small nowrap"><u>4404019200</u>4.1&nbsp;ГБ</td>
  <td class="row4 seedmed"><b>33</b></td>
  <td class="row4 leechmed"><b>4</b></td>
  <td class="row4 small nowrap"><u>1735862400</u>03-Янв-25</td>
</tr>
<tr class="prow1">
  <td class="row1"><span class="gen">Кино</span></td>
  <td class="row4 med"><a class="topictitle" href="viewtopic.php?t=100502">Начало / Inception (2010) HDTV 720p</a></td>
  <td class="row4 small"><a href="download.php?id=100502">Скачать</a></td>
  <td class="row4 small nowrap"><u>2202009600</u>2.1&nbsp;ГБ</td>
  <td class="row4 seedmed"><b>5</b></td>
  <td class="row4 leechmed"><b>1</b></td>
  <td class="row4 small nowrap"><u>1735689600</u>01-Янв-25</td>
</tr>
</table>
</body>
</html>`

func TestNNMClubSearch(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forum/tracker.php", r.URL.Path)
		gotQuery = r.URL.Query().Get("nm")

		encoded, err := charmap.Windows1251.NewEncoder().Bytes([]byte(nnmclubSearchFixture))
		require.NoError(t, err)

		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write(encoded)
	}))
	defer server.Close()

	source := NewNNMClub(server.URL, 10*time.Second)
	require.Equal(t, "nnmclub", source.Name())

	candidates, err := source.Search(context.Background(), SearchCriteria{
		Kind:  MediaKindMovie,
		Title: "Inception",
		Year:  2010,
	})
	require.NoError(t, err)

	assert.Equal(t, "Inception 2010", gotQuery)

	// The Matrix row fails the title guard, the third row has no magnet.
	require.Len(t, candidates, 1)

	assert.Equal(t, "689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", candidates[0].InfoHash)
	assert.Equal(t, "Начало / Inception (2010) BDRip 1080p", candidates[0].Title)
	assert.Equal(t, "nnmclub", candidates[0].Source)
	assert.Equal(t, 150, candidates[0].Seeders)
	assert.Equal(t, int64(10200547328), candidates[0].Size)
	assert.Equal(t, quality.Resolution1080p, candidates[0].Quality.Resolution)
	assert.Equal(t, quality.SourceBluRay, candidates[0].Quality.Source)
}

func TestNNMClubSearchEmptyTitle(t *testing.T) {
	source := NewNNMClub("http://127.0.0.1:1", time.Second)

	candidates, err := source.Search(context.Background(), SearchCriteria{Kind: MediaKindSeries})
	require.NoError(t, err)
	assert.Nil(t, candidates)
}

func TestNNMClubSearchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	source := NewNNMClub(server.URL, 10*time.Second)

	_, err := source.Search(context.Background(), SearchCriteria{Kind: MediaKindMovie, Title: "Inception"})
	require.Error(t, err)
	assert.ErrorIs(t, err, &FetchError{})
}
