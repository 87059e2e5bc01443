package store

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixDB_GetPutDelete(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns1/"))

	require.NoError(t, db.Put([]byte("key1"), []byte("val1")))
	got, err := db.Get([]byte("key1"))
	require.NoError(t, err)
	require.Equal(t, "val1", string(got))

	ok, err := db.Has([]byte("key1"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, db.Delete([]byte("key1")))
	ok, err = db.Has([]byte("key1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	dbA := NewPrefixDB(inner, []byte("a/"))
	dbB := NewPrefixDB(inner, []byte("b/"))

	require.NoError(t, dbA.Put([]byte("key"), []byte("fromA")))
	require.NoError(t, dbB.Put([]byte("key"), []byte("fromB")))

	got, err := dbA.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, "fromA", string(got))

	got, err = dbB.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, "fromB", string(got))

	ok, err := dbA.Has([]byte("b/key"))
	require.NoError(t, err)
	require.False(t, ok, "A should not see B's raw key")
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("pre/"))
	require.NoError(t, db.Put([]byte("hello"), []byte("world")))

	var sawKey string
	require.NoError(t, db.ForEach(nil, func(key, value []byte) error {
		sawKey = string(key)
		return nil
	}))
	require.Equal(t, "hello", sawKey)
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("p/"))
	for i := 0; i < 10; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
	}

	count := 0
	stopErr := fmt.Errorf("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	require.ErrorIs(t, err, stopErr)
	require.Equal(t, 3, count)
}

func TestPrefixDB_DeleteAll(t *testing.T) {
	inner := NewMemory()
	dbA := NewPrefixDB(inner, []byte("a/"))
	dbB := NewPrefixDB(inner, []byte("b/"))

	require.NoError(t, dbA.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, dbA.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, dbB.Put([]byte("k1"), []byte("other")))

	require.NoError(t, dbA.DeleteAll())
	for _, k := range []string{"k1", "k2"} {
		ok, _ := dbA.Has([]byte(k))
		require.False(t, ok)
	}

	got, err := dbB.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "other", string(got))
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns/"))

	b := db.NewBatch()
	require.NoError(t, b.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, b.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, b.Commit())

	got, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	// Raw keys in the inner DB carry the namespace prefix.
	var keys []string
	require.NoError(t, inner.ForEach([]byte("ns/"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	sort.Strings(keys)
	require.Equal(t, []string{"ns/k1", "ns/k2"}, keys)
}
