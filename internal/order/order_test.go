package order

import (
	"math/big"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, userID uint64, sell, buy int64) Encoded {
	t.Helper()
	enc, err := Encode(Order{UserID: userID, SellAmount: big.NewInt(sell), BuyAmount: big.NewInt(buy)})
	require.NoError(t, err)
	return enc
}

func TestDecode_Layout(t *testing.T) {
	// userId=2, buyAmount=0x0de0b6b3a7640000 (1e18), sellAmount=0x1bc16d674ec80000 (2e18)
	enc := Encoded("0x0000000000000002" +
		"00000000" + "0de0b6b3a7640000" +
		"00000000" + "1bc16d674ec80000")
	require.Len(t, string(enc), 2+64)

	o, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), o.UserID)
	assert.Equal(t, "1000000000000000000", o.BuyAmount.String())
	assert.Equal(t, "2000000000000000000", o.SellAmount.String())
}

func TestEncodeDecode_MaxAmounts(t *testing.T) {
	max96 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), AmountBits), big.NewInt(1))
	enc, err := Encode(Order{UserID: ^uint64(0), SellAmount: max96, BuyAmount: max96})
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("f", 64), string(enc))

	o, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), o.UserID)
	assert.Equal(t, 0, o.SellAmount.Cmp(max96))
	assert.Equal(t, 0, o.BuyAmount.Cmp(max96))
}

func TestEncode_RejectsOutOfRange(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), AmountBits)

	_, err := Encode(Order{SellAmount: tooBig, BuyAmount: big.NewInt(1)})
	assert.Error(t, err)

	_, err = Encode(Order{SellAmount: big.NewInt(1), BuyAmount: big.NewInt(-1)})
	assert.Error(t, err)

	_, err = Encode(Order{SellAmount: nil, BuyAmount: big.NewInt(1)})
	assert.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]Encoded{
		"empty":          "",
		"no prefix":      Encoded(strings.Repeat("0", 64)),
		"too short":      "0x0001",
		"too long":       Encoded("0x" + strings.Repeat("0", 66)),
		"odd length":     Encoded("0x" + strings.Repeat("0", 63)),
		"non hex digits": Encoded("0x" + strings.Repeat("z", 64)),
	}
	for name, enc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(enc)
			require.Error(t, err)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "expected *DecodeError, got %T", err)
			assert.Equal(t, enc, decErr.Input)
		})
	}
}

func TestDecodeAll_FailsOnFirstMalformed(t *testing.T) {
	good := mustEncode(t, 1, 100, 200)
	_, err := DecodeAll([]Encoded{good, "0xdead", good})

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, Encoded("0xdead"), decErr.Input)
}

func TestOrder_EqualIgnoresUserID(t *testing.T) {
	a, err := Decode(mustEncode(t, 1, 100, 200))
	require.NoError(t, err)
	b, err := Decode(mustEncode(t, 99, 100, 200))
	require.NoError(t, err)
	c, err := Decode(mustEncode(t, 1, 100, 201))
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Order{}.Equal(Order{SellAmount: big.NewInt(0), BuyAmount: big.NewInt(0)}))
}

func TestEncoded_Hash(t *testing.T) {
	enc := mustEncode(t, 3, 5, 6)
	h, err := enc.Hash()
	require.NoError(t, err)
	assert.Equal(t, string(enc), h.Hex())

	_, err = Encoded("0x12").Hash()
	assert.Error(t, err)
}

func TestEncoded_IsQueueSentinel(t *testing.T) {
	assert.True(t, QueueStartElement.IsQueueSentinel())
	assert.True(t, QueueLastElement.IsQueueSentinel())
	assert.False(t, Encoded(string(QueueLastElement[2:])).IsQueueSentinel())
	assert.False(t, mustEncode(t, 1, 100, 200).IsQueueSentinel())
}

func TestHashAll(t *testing.T) {
	hashes, err := HashAll([]Encoded{mustEncode(t, 1, 1, 1), mustEncode(t, 2, 2, 2)})
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
	assert.Equal(t, byte(2), hashes[1][7])

	_, err = HashAll([]Encoded{"0x"})
	assert.Error(t, err)
}
