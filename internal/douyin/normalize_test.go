package douyin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_ExtractsFromShareText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{
			in:   "7.43 复制打开抖音，看看【便携榨汁杯】 https://v.douyin.com/ABC123/ 12/10 a@b.cn:/",
			want: "https://v.douyin.com/ABC123/",
		},
		{in: "https://v.douyin.com/ABC123/", want: "https://v.douyin.com/ABC123/"},
		{in: "look: https://www.douyin.com/product/42?x=1.", want: "https://www.douyin.com/product/42?x=1"},
		{in: "长按复制v.douyin.com/xyz9/，打开抖音", want: "https://v.douyin.com/xyz9/"},
		{in: "(https://v.douyin.com/Q1w2E3/)", want: "https://v.douyin.com/Q1w2E3/"},
		{
			in:   "https://v.douyin.com/iABC123/复制此链接，打开Dou音搜索，直接观看视频！",
			want: "https://v.douyin.com/iABC123/",
		},
		{
			in:   "看看【便携榨汁杯】https://v.douyin.com/iABC123/复制此链接，打开Dou音搜索",
			want: "https://v.douyin.com/iABC123/",
		},
		{in: "https://www.douyin.com/product/42?id=7%E4%B8%AD&x=1商品", want: "https://www.douyin.com/product/42?id=7%E4%B8%AD&x=1"},
		{
			in:   "https://haohuo.jinritemai.com/ecommerce/trade/detail/index.html?id=9",
			want: "https://haohuo.jinritemai.com/ecommerce/trade/detail/index.html?id=9",
		},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalize_SkipsForeignHosts(t *testing.T) {
	t.Parallel()

	got, err := Normalize("mirror https://example.com/p/1 original https://v.douyin.com/ok/")
	require.NoError(t, err)
	require.Equal(t, "https://v.douyin.com/ok/", got)
}

func TestNormalize_NoURL(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "no link here", "https://example.com/product/1", "https://v.douyin.comx/"} {
		_, err := Normalize(in)
		require.ErrorIs(t, err, ErrNoURLFound, in)
	}
}

func TestNormalize_IsIdempotent(t *testing.T) {
	t.Parallel()

	first, err := Normalize("分享 https://v.douyin.com/ABC123/ ！")
	require.NoError(t, err)
	second, err := Normalize(first)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDetectHost(t *testing.T) {
	t.Parallel()

	cases := map[string]HostKind{
		"https://v.douyin.com/abc/":                     ShortLink,
		"https://douyin.com/product/1":                  Site,
		"https://www.douyin.com/product/1":              Site,
		"https://www.iesdouyin.com/share/video/1":       Site,
		"https://haohuo.jinritemai.com/views/product/1": Mall,
		"https://ec.snssdk.com/product/goods/detail/v2": Mall,
	}
	for raw, want := range cases {
		got, err := DetectHost(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"https://notdouyin.com/x", "v.douyin.com/abc", "mailto:x@douyin.com"} {
		_, err := DetectHost(raw)
		require.Error(t, err, raw)
	}
}
