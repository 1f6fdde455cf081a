package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("Hello world", 10)
	require.Len(t, ids, 10)
	require.Len(t, attn, 10)
	require.Len(t, types, 10)
	assert.Equal(t, int64(tokenCLS), ids[0])
	assert.Equal(t, int64(tokenSEP), ids[3])
	assert.Equal(t, []int64{1, 1, 1, 1, 0}, attn[:5])

	lower, _, _ := tok.Tokenize("hello WORLD", 10)
	assert.Equal(t, ids, lower, "tokenization is case-insensitive")
}

func TestSimpleTokenizer_truncates(t *testing.T) {
	ids, attn, _ := (&SimpleTokenizer{}).Tokenize("a b c d e f g h", 4)
	require.Len(t, ids, 4)
	assert.Equal(t, int64(tokenSEP), ids[3], "last position is SEP")
	assert.Equal(t, int64(1), attn[3])
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitWords("  a, b.  c\n"))
	assert.Nil(t, SplitWords(""))
}

func TestHashString(t *testing.T) {
	assert.NotZero(t, HashString("abc"))
	assert.Equal(t, HashString("abc"), HashString("abc"))
}
