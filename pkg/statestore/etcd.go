package statestore

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

type etcdStore struct {
	cli *clientv3.Client
}

// NewEtcdStore dials an etcd cluster and returns a KV backed by it.
func NewEtcdStore(cfg Config) (KV, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, derror.WrapError(derror.ErrStoreOpFail, err)
	}
	return &etcdStore{cli: cli}, nil
}

// NewEtcdStoreWithClient wraps an existing etcd client. The caller keeps
// ownership of the client's lifecycle.
func NewEtcdStoreWithClient(cli *clientv3.Client) KV {
	return &etcdStore{cli: cli}
}

func (s *etcdStore) Put(ctx context.Context, key, value string) error {
	_, err := s.cli.Put(ctx, key, value)
	return derror.WrapError(derror.ErrStoreOpFail, err)
}

func (s *etcdStore) Get(ctx context.Context, key string) (string, error) {
	resp, err := s.cli.Get(ctx, key)
	if err != nil {
		return "", derror.WrapError(derror.ErrStoreOpFail, err)
	}
	if len(resp.Kvs) == 0 {
		return "", derror.ErrStoreEntryNotFound.GenWithStackByArgs(key)
	}
	return string(resp.Kvs[0].Value), nil
}

func (s *etcdStore) GetPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	resp, err := s.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, derror.WrapError(derror.ErrStoreOpFail, err)
	}
	ret := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ret[string(kv.Key)] = string(kv.Value)
	}
	return ret, nil
}

func (s *etcdStore) Delete(ctx context.Context, key string) error {
	_, err := s.cli.Delete(ctx, key)
	return derror.WrapError(derror.ErrStoreOpFail, err)
}

func (s *etcdStore) Close() error {
	return s.cli.Close()
}
