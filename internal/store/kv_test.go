package store

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// runKVSuite runs the shared DB contract tests against any implementation.
func runKVSuite(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("key1"), []byte("value1")))
		val, err := db.Get([]byte("key1"))
		require.NoError(t, err)
		require.True(t, bytes.Equal(val, []byte("value1")))
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Has", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("exists"), []byte("yes")))
		ok, err := db.Has([]byte("exists"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = db.Has([]byte("missing-has"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("ow"), []byte("first")))
		require.NoError(t, db.Put([]byte("ow"), []byte("second")))
		val, err := db.Get([]byte("ow"))
		require.NoError(t, err)
		require.Equal(t, []byte("second"), val)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("del"), []byte("value")))
		require.NoError(t, db.Delete([]byte("del")))
		ok, _ := db.Has([]byte("del"))
		require.False(t, ok)
		_, err := db.Get([]byte("del"))
		require.Error(t, err)
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		require.NoError(t, db.Delete([]byte("never-existed")))
	})

	t.Run("ForEach", func(t *testing.T) {
		require.NoError(t, db.Put([]byte("pfx/a"), []byte("1")))
		require.NoError(t, db.Put([]byte("pfx/b"), []byte("2")))
		require.NoError(t, db.Put([]byte("pfx/c"), []byte("3")))
		require.NoError(t, db.Put([]byte("other/x"), []byte("4")))

		var count int
		err := db.ForEach([]byte("pfx/"), func(key, value []byte) error {
			count++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, count)
	})

	t.Run("Batch", func(t *testing.T) {
		batcher, ok := db.(Batcher)
		if !ok {
			t.Skip("DB does not implement Batcher")
		}
		b := batcher.NewBatch()
		require.NoError(t, b.Put([]byte("batch/1"), []byte("a")))
		require.NoError(t, b.Put([]byte("batch/2"), []byte("b")))
		require.NoError(t, b.Commit())

		v1, err := db.Get([]byte("batch/1"))
		require.NoError(t, err)
		require.Equal(t, []byte("a"), v1)
		v2, err := db.Get([]byte("batch/2"))
		require.NoError(t, err)
		require.Equal(t, []byte("b"), v2)
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	runKVSuite(t, db)
}

func TestBadgerDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	require.NoError(t, err)
	defer db.Close()
	runKVSuite(t, db)
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewBadger(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("persist"), []byte("data")))
	require.NoError(t, db1.Close())

	db2, err := NewBadger(dir)
	require.NoError(t, err)
	defer db2.Close()

	val, err := db2.Get([]byte("persist"))
	require.NoError(t, err)
	require.Equal(t, []byte("data"), val)
}
