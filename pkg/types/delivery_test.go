package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeliveryInfoScanAcceptsTextAndBytes(t *testing.T) {
	doc := `{"recipient":"Ana","line1":"Rua A 10","city":"Recife","state":"PE","postal_code":"50000-000"}`

	var fromText DeliveryInfo
	require.NoError(t, fromText.Scan(doc))
	require.Equal(t, "Ana", fromText.Recipient)

	var fromBytes DeliveryInfo
	require.NoError(t, fromBytes.Scan([]byte(doc)))
	require.Equal(t, fromText, fromBytes)

	require.Error(t, fromBytes.Scan(42))
}

func TestDeliveryInfoValueRequiresLine1(t *testing.T) {
	_, err := DeliveryInfo{Recipient: "Ana"}.Value()
	require.Error(t, err)

	v, err := DeliveryInfo{Recipient: "Ana", Line1: "Rua A 10"}.Value()
	require.NoError(t, err)
	require.Contains(t, v, `"line1":"Rua A 10"`)
}

func TestJSONMapNilRoundTrip(t *testing.T) {
	var m JSONMap
	v, err := m.Value()
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, m.Scan(`{"source":"pix"}`))
	require.Equal(t, "pix", m["source"])
}
