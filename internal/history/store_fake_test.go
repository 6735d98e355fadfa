package history

import (
	"context"
	"path"
	"sort"
	"time"

	"chatbi/internal/errors"
)

// fakeStore 内存实现，供本包测试使用
type fakeStore struct {
	lists   map[string][]string
	kv      map[string]string
	zsets   map[string]map[string]float64
	failOps map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lists:   make(map[string][]string),
		kv:      make(map[string]string),
		zsets:   make(map[string]map[string]float64),
		failOps: make(map[string]bool),
	}
}

func (fs *fakeStore) fail(op string) error {
	if fs.failOps[op] {
		return errors.ErrHistoryStore(op+" failed", nil)
	}
	return nil
}

func (fs *fakeStore) ListPush(ctx context.Context, key, value string) error {
	if err := fs.fail("lpush"); err != nil {
		return err
	}
	fs.lists[key] = append([]string{value}, fs.lists[key]...)
	return nil
}

func (fs *fakeStore) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := fs.fail("ltrim"); err != nil {
		return err
	}
	list := fs.lists[key]
	if int64(len(list)) > stop+1 {
		fs.lists[key] = list[start : stop+1]
	}
	return nil
}

func (fs *fakeStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := fs.fail("lrange"); err != nil {
		return nil, err
	}
	list := fs.lists[key]
	if start >= int64(len(list)) {
		return nil, nil
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	return list[start : stop+1], nil
}

func (fs *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := fs.fail("get"); err != nil {
		return "", false, err
	}
	value, ok := fs.kv[key]
	return value, ok, nil
}

func (fs *fakeStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := fs.fail("set"); err != nil {
		return err
	}
	fs.kv[key] = value
	return nil
}

func (fs *fakeStore) SortedIncr(ctx context.Context, key, member string, delta float64) error {
	if err := fs.fail("zincrby"); err != nil {
		return err
	}
	if fs.zsets[key] == nil {
		fs.zsets[key] = make(map[string]float64)
	}
	fs.zsets[key][member] += delta
	return nil
}

func (fs *fakeStore) SortedTopDesc(ctx context.Context, key string, limit int64) ([]ScoredMember, error) {
	if err := fs.fail("zrevrange"); err != nil {
		return nil, err
	}
	members := make([]ScoredMember, 0, len(fs.zsets[key]))
	for member, score := range fs.zsets[key] {
		members = append(members, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})
	if int64(len(members)) > limit {
		members = members[:limit]
	}
	return members, nil
}

func (fs *fakeStore) SortedScore(ctx context.Context, key, member string) (float64, bool, error) {
	if err := fs.fail("zscore"); err != nil {
		return 0, false, err
	}
	score, ok := fs.zsets[key][member]
	return score, ok, nil
}

func (fs *fakeStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := fs.fail("scan"); err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for key := range fs.zsets {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (fs *fakeStore) Ping(ctx context.Context) error {
	return fs.fail("ping")
}
