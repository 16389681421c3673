package charset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_UTF8(t *testing.T) {
	input := "Hello, 世界! Привет мир!"
	assert.Equal(t, input, Decode([]byte(input), "utf-8", ModeIgnore))
}

func TestDecode_EmptyCharsetIsUTF8(t *testing.T) {
	assert.Equal(t, "Hello", Decode([]byte("Hello"), "", ModeIgnore))
}

func TestDecode_EmptyInput(t *testing.T) {
	assert.Equal(t, "", Decode(nil, "utf-8", ModeReplace))
}

func TestDecode_ISO88591(t *testing.T) {
	// é = 0xE9, ñ = 0xF1 in ISO-8859-1
	assert.Equal(t, "éñ", Decode([]byte{0xE9, 0xF1}, "iso-8859-1", ModeIgnore))
	assert.Equal(t, "é", Decode([]byte{0xE9}, "latin1", ModeIgnore))
}

func TestDecode_Windows1252(t *testing.T) {
	assert.Equal(t, "€", Decode([]byte{0x80}, "windows-1252", ModeIgnore))
}

func TestDecode_CaseAndQuotesInsensitive(t *testing.T) {
	for _, cs := range []string{"UTF-8", "utf-8", "Utf-8", "UTF8", `"utf-8"`} {
		t.Run(cs, func(t *testing.T) {
			assert.Equal(t, "Hello", Decode([]byte("Hello"), cs, ModeIgnore))
		})
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	input := []byte("thank\xff you")

	tests := []struct {
		name string
		mode Mode
		want string
	}{
		{name: "ignore drops bytes", mode: ModeIgnore, want: "thank you"},
		{name: "replace substitutes", mode: ModeReplace, want: "thank� you"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(input, "utf-8", tt.mode))
		})
	}
}

func TestDecode_IgnoreKeepsLiteralReplacementChar(t *testing.T) {
	input := []byte("a\uFFFDb\xffc")

	assert.Equal(t, "a\uFFFDbc", Decode(input, "utf-8", ModeIgnore))
	assert.Equal(t, "a\uFFFDb\uFFFDc", Decode(input, "utf-8", ModeReplace))
}

func TestDecode_IgnoreDropsCharsetDecoderMarkers(t *testing.T) {
	// 0x81 is not a valid Shift_JIS sequence on its own.
	assert.NotContains(t, Decode([]byte("ok\x81"), "shift_jis", ModeIgnore), "\uFFFD")
}

func TestDecode_UnknownCharsetFallsBackToUTF8(t *testing.T) {
	assert.Equal(t, "Hello, World!", Decode([]byte("Hello, World!"), "unknown-charset-xyz", ModeIgnore))
	assert.Equal(t, "ab", Decode([]byte("a\xffb"), "unknown-charset-xyz", ModeIgnore))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeIgnore},
		{in: "ignore", want: ModeIgnore},
		{in: "REPLACE", want: ModeReplace},
		{in: "strict", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}
