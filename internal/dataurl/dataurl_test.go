package dataurl

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantOK   bool
		wantMime string
		wantBody string
	}{
		{"png", "data:image/png;base64,iVBORw0KGgo=", true, "image/png", "iVBORw0KGgo="},
		{"missing prefix", "image/png;base64,iVBORw0KGgo=", false, "", ""},
		{"not base64", "data:text/plain,hello", false, "", ""},
		{"empty mime", "data:;base64,AAAA", false, "", ""},
		{"empty body", "data:image/png;base64,", false, "", ""},
		{"extra params", "data:image/png;charset=utf-8;base64,AAAA", false, "", ""},
		{"plain uri", "file:///tmp/a.png", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Parse(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMime, p.MimeType)
			assert.Equal(t, tt.wantBody, p.Body)
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mimes := []string{"image/png", "image/jpeg", "application/octet-stream", "image/heic"}

	for i := 0; i < 50; i++ {
		data := make([]byte, rng.Intn(4096)+1)
		rng.Read(data)
		mime := mimes[i%len(mimes)]

		gotMime, gotData, err := Decode(Encode(mime, data))
		require.NoError(t, err)
		assert.Equal(t, mime, gotMime)
		assert.True(t, bytes.Equal(data, gotData), "iteration %d", i)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, _, err := Decode("data:image/png;base64,!!!notbase64")
	assert.Error(t, err)

	_, _, err = Decode("garbage")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 1024} {
		got := Describe(Encode("image/jpeg", make([]byte, size)))
		assert.Equal(t, fmt.Sprintf("data:image/jpeg;base64,…(%d bytes)", size), got)
	}

	assert.Equal(t, "file:///tmp/a.png", Describe("file:///tmp/a.png"))
	assert.Equal(t, "data:text/plain,hi", Describe("data:text/plain,hi"))
}
