package ereserve

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChapterUnmarshalStringID(t *testing.T) {
	var ch Chapter
	require.NoError(t, json.Unmarshal([]byte(`{"EMID":"c1","EFRAGMENTNAME":"One"}`), &ch))
	assert.Equal(t, "c1", ch.ID)
	assert.Equal(t, "One", ch.Name)
}

func TestChapterUnmarshalNumericID(t *testing.T) {
	var ch Chapter
	require.NoError(t, json.Unmarshal([]byte(`{"EMID":10023,"EFRAGMENTNAME":"One"}`), &ch))
	assert.Equal(t, "10023", ch.ID)
}

func TestChapterUnmarshalNullID(t *testing.T) {
	var ch Chapter
	require.NoError(t, json.Unmarshal([]byte(`{"EMID":null,"EFRAGMENTNAME":"One"}`), &ch))
	assert.Equal(t, "", ch.ID)
}

func TestChapterDisplayName(t *testing.T) {
	assert.Equal(t, "第一章", Chapter{ID: "c1", Name: "第一章"}.DisplayName())
	assert.Equal(t, "c1", Chapter{ID: "c1"}.DisplayName())
}

func TestChapterDirName(t *testing.T) {
	assert.Equal(t, "第一章", Chapter{ID: "c1", Name: "第一章"}.DirName())
	assert.Equal(t, "a_b", Chapter{ID: "c1", Name: "a/b"}.DirName())
	assert.Equal(t, "chapter", Chapter{}.DirName())
}

func TestViewerBookID(t *testing.T) {
	id, err := ViewerBookID("https://host/jxcankao/bookDetail/scanRead/ab12cd")
	require.NoError(t, err)
	assert.Equal(t, "ab12cd", id)
}

func TestViewerBookIDTrailingSlash(t *testing.T) {
	id, err := ViewerBookID("https://host/reader/xyz/")
	require.NoError(t, err)
	assert.Equal(t, "xyz", id)
}

func TestViewerBookIDUnusable(t *testing.T) {
	for _, u := range []string{"", "https://host", "https://host/"} {
		_, err := ViewerBookID(u)
		assert.ErrorIs(t, err, ErrMissingViewerContext, "url %q", u)
	}
}
