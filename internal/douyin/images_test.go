package douyin

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtractImages_ProductImages(t *testing.T) {
	t.Parallel()

	payload := gjson.Parse(`{
		"product": {
			"images": [
				{"id": "1", "url": "https://example.com/1.png", "width": 800, "height": 600},
				{"id": "2", "url_list": ["https://example.com/2a.png", "https://example.com/2b.png"]}
			]
		}
	}`)

	refs, found := ExtractImages(payload)
	require.True(t, found)
	require.Len(t, refs, 2)
	require.Equal(t, ImageRef{URL: "https://example.com/1.png", Ordinal: 0, Width: 800, Height: 600}, refs[0])
	require.Equal(t, "https://example.com/2a.png", refs[1].URL)
	require.Equal(t, 1, refs[1].Ordinal)
}

func TestExtractImages_EmptyImageFallsBackToImages(t *testing.T) {
	t.Parallel()

	payload := gjson.Parse(`{"product":{"image":[],"images":["https://example.com/a.jpg"]}}`)

	refs, found := ExtractImages(payload)
	require.True(t, found)
	require.Len(t, refs, 1)
}

func TestExtractImages_DataImageListStringsAndDedup(t *testing.T) {
	t.Parallel()

	payload := gjson.Parse(`{"data":{"image_list":[
		"//p3-item.ecombdimg.com/img/a.jpeg",
		{"origin_url":"https://p3-item.ecombdimg.com/img/b.jpeg","file_type":"jpeg"},
		"//p3-item.ecombdimg.com/img/a.jpeg",
		42,
		"data:image/png;base64,AAAA",
		{"image_url":"https://p3-item.ecombdimg.com/img/c.webp"}
	]}}`)

	refs, found := ExtractImages(payload)
	require.True(t, found)
	require.Equal(t, []ImageRef{
		{URL: "https://p3-item.ecombdimg.com/img/a.jpeg", Ordinal: 0},
		{URL: "https://p3-item.ecombdimg.com/img/b.jpeg", Ordinal: 1, Format: "jpeg"},
		{URL: "https://p3-item.ecombdimg.com/img/c.webp", Ordinal: 2},
	}, refs)
}

func TestExtractImages_NestedPageData(t *testing.T) {
	t.Parallel()

	payload := gjson.Parse(`{"app":{"user":{"images":[]},"product":{"detail":{"main_img_list":[{"url":"https://x.test/1.jpg"},{"url":"https://x.test/2.jpg"}]}}}}`)

	refs, found := ExtractImages(payload)
	require.True(t, found)
	require.Len(t, refs, 2)
	require.Equal(t, "https://x.test/2.jpg", refs[1].URL)
}

func TestExtractImages_StructureStates(t *testing.T) {
	t.Parallel()

	refs, found := ExtractImages(gjson.Parse(`{"data":{"images":[]}}`))
	require.True(t, found)
	require.Empty(t, refs)

	refs, found = ExtractImages(gjson.Parse(`{"data":{"title":"no gallery"}}`))
	require.False(t, found)
	require.Empty(t, refs)
}
