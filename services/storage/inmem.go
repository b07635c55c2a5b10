package storagesvc

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/fundisha/backend/core"
)

// inmemStorage holds uploads in memory; used in tests and debug runs
// where no object store is available.
type inmemStorage struct {
	mutex   sync.RWMutex
	objects map[string][]byte
	baseURL string
}

var _ core.FileStorage = (*inmemStorage)(nil)

func NewInmemStorage(baseURL string) *inmemStorage {
	return &inmemStorage{
		objects: make(map[string][]byte),
		baseURL: baseURL,
	}
}

func (st *inmemStorage) Save(ctx context.Context, key, contentType string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", errors.Wrap(err, "reading content")
	}
	st.mutex.Lock()
	st.objects[key] = data
	st.mutex.Unlock()
	return st.baseURL + "/" + key, nil
}

// Get returns a stored object; test helper.
func (st *inmemStorage) Get(key string) ([]byte, bool) {
	st.mutex.RLock()
	defer st.mutex.RUnlock()
	data, ok := st.objects[key]
	return data, ok
}
