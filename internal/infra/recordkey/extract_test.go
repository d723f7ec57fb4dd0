package recordkey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osvaldoandrade/storemigrate/internal/domain"
)

func TestExtract(t *testing.T) {
	record := []byte(`{"id":"u1","n":7,"address":{"city":"Lisbon"},"tags":["a","b"]}`)

	key, err := Extract(record, domain.Path("id"))
	require.NoError(t, err)
	assert.Equal(t, `"u1"`, string(key))

	key, err = Extract(record, domain.Path("address.city"))
	require.NoError(t, err)
	assert.Equal(t, `"Lisbon"`, string(key))

	key, err = Extract(record, domain.Paths("n", "id"))
	require.NoError(t, err)
	assert.Equal(t, `[7,"u1"]`, string(key))

	key, err = Extract(record, domain.Path("tags"))
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(key))
}

func TestExtractRejectsMissingAndInvalidKeys(t *testing.T) {
	record := []byte(`{"id":null,"flag":true,"obj":{}}`)

	_, err := Extract(record, domain.Path("id"))
	assert.True(t, errors.Is(err, ErrMissingKey))
	_, err = Extract(record, domain.Path("nope"))
	assert.True(t, errors.Is(err, ErrMissingKey))
	_, err = Extract(record, domain.Path("flag"))
	assert.True(t, errors.Is(err, ErrInvalidKey))
	_, err = Extract(record, domain.Path("obj"))
	assert.True(t, errors.Is(err, ErrInvalidKey))
	_, err = Extract(record, domain.KeyPath{})
	assert.True(t, errors.Is(err, ErrMissingKey))
}

func TestIndexEntries(t *testing.T) {
	record := []byte(`{"email":"a@x","tags":["red","blue","red",{"x":1}]}`)

	entries, err := IndexEntries(record, domain.IndexSpec{KeyPath: domain.Path("email")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte(`"a@x"`)}, entries)

	entries, err = IndexEntries(record, domain.IndexSpec{KeyPath: domain.Path("tags"), MultiEntry: true})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte(`"red"`), []byte(`"blue"`)}, entries)

	entries, err = IndexEntries(record, domain.IndexSpec{KeyPath: domain.Path("missing")})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestText(t *testing.T) {
	assert.Equal(t, "u1", Text([]byte(`"u1"`)))
	assert.Equal(t, `a"b`, Text([]byte(`"a\"b"`)))
	assert.Equal(t, "7", Text([]byte(`7`)))
	assert.Equal(t, `[7,"u1"]`, Text([]byte(`[7,"u1"]`)))
}

func TestCheck(t *testing.T) {
	assert.NoError(t, Check([]byte(` {"a":1} `)))
	assert.ErrorIs(t, Check([]byte(`[1]`)), domain.ErrInvalidRecord)
	assert.ErrorIs(t, Check([]byte(`{"a":`)), domain.ErrInvalidRecord)
	assert.ErrorIs(t, Check(nil), domain.ErrInvalidRecord)
}
