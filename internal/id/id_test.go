package id

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_IsV7(t *testing.T) {
	s := Conn()
	u, err := uuid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), u.Version())
}

func TestConn_Sortable(t *testing.T) {
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = Conn()
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestRequest_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := Request()
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Request()))
	assert.False(t, Valid("not-a-uuid"))
}
