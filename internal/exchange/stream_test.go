package exchange

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaybeInflate_PassesThroughPlainJSON(t *testing.T) {
	raw := []byte(`{"c":"100"}`)
	out, err := maybeInflate(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestMaybeInflate_InflatesGzippedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(`{"c":"200"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	out, err := maybeInflate(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"c":"200"}`, string(out))
}

func TestMaybeInflate_ShortInputPassesThroughUnchanged(t *testing.T) {
	out, err := maybeInflate([]byte{0x1F})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1F}, out)
}

func TestDecodeTickerFrame_PrefersShortKeysOverLongKeys(t *testing.T) {
	payload := []byte(`{"c":"65000","lastPrice":"99999","v":"120"}`)
	frame, err := decodeTickerFrame("BTCUSDT", payload)
	require.NoError(t, err)
	assert.Equal(t, "65000", frame.LastPrice)
	assert.Equal(t, "120", frame.Volume)
}

func TestDecodeTickerFrame_FallsBackToLongKeyWhenShortKeyAbsent(t *testing.T) {
	payload := []byte(`{"lastPrice":"65000","bidPrice":"64990"}`)
	frame, err := decodeTickerFrame("BTCUSDT", payload)
	require.NoError(t, err)
	assert.Equal(t, "65000", frame.LastPrice)
	assert.Equal(t, "64990", frame.BidPrice)
}

func TestDecodeTickerFrame_CoercesNumericFields(t *testing.T) {
	payload := []byte(`{"c":65000.5}`)
	frame, err := decodeTickerFrame("BTCUSDT", payload)
	require.NoError(t, err)
	assert.Equal(t, "65000.5", frame.LastPrice)
}

func TestDecodeTickerFrame_ErrorsWhenNoPriceFieldPresent(t *testing.T) {
	_, err := decodeTickerFrame("BTCUSDT", []byte(`{"v":"100"}`))
	assert.Error(t, err)
}

func TestDecodeTickerFrame_ErrorsOnMalformedJSON(t *testing.T) {
	_, err := decodeTickerFrame("BTCUSDT", []byte(`not json`))
	assert.Error(t, err)
}
