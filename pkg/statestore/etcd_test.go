package statestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/suite"
	"go.etcd.io/etcd/server/v3/embed"

	derror "github.com/voidking/incubator-seatunnel/pkg/errors"
)

type etcdStoreSuite struct {
	suite.Suite

	etcd      *embed.Etcd
	dataDir   string
	endpoints []string
}

func (s *etcdStoreSuite) allocTempURL() *url.URL {
	port, err := freeport.GetFreePort()
	s.Require().NoError(err)
	u, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	s.Require().NoError(err)
	return u
}

func (s *etcdStoreSuite) SetupSuite() {
	dir, err := os.MkdirTemp("", "statestore-etcd")
	s.Require().NoError(err)
	s.dataDir = dir

	cfg := embed.NewConfig()
	cfg.Dir = dir
	cfg.Logger = "zap"
	cfg.LogLevel = "error"
	peerURL := s.allocTempURL()
	clientURL := s.allocTempURL()
	cfg.LPUrls = []url.URL{*peerURL}
	cfg.APUrls = []url.URL{*peerURL}
	cfg.LCUrls = []url.URL{*clientURL}
	cfg.ACUrls = []url.URL{*clientURL}
	cfg.InitialCluster = cfg.InitialClusterFromName(cfg.Name)

	s.etcd, err = embed.StartEtcd(cfg)
	s.Require().NoError(err)
	select {
	case <-s.etcd.Server.ReadyNotify():
	case <-time.After(60 * time.Second):
		s.etcd.Server.Stop()
		s.etcd.Close()
		s.etcd = nil
		s.FailNow("embedded etcd took too long to start")
	}
	s.endpoints = []string{clientURL.String()}
}

func (s *etcdStoreSuite) TearDownSuite() {
	if s.etcd != nil {
		s.etcd.Server.Stop()
		s.etcd.Close()
	}
	if s.dataDir != "" {
		_ = os.RemoveAll(s.dataDir)
	}
}

func (s *etcdStoreSuite) newStore() KV {
	store, err := NewEtcdStore(Config{
		Endpoints:   s.endpoints,
		DialTimeout: 3 * time.Second,
	})
	s.Require().NoError(err)
	return store
}

func (s *etcdStoreSuite) TestPutGetDelete() {
	store := s.newStore()
	defer func() {
		s.Require().NoError(store.Close())
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.Get(ctx, "/missing")
	s.Require().True(derror.ErrStoreEntryNotFound.Equal(err))

	s.Require().NoError(store.Put(ctx, "/k1", "v1"))
	v, err := store.Get(ctx, "/k1")
	s.Require().NoError(err)
	s.Require().Equal("v1", v)

	s.Require().NoError(store.Delete(ctx, "/k1"))
	_, err = store.Get(ctx, "/k1")
	s.Require().True(derror.ErrStoreEntryNotFound.Equal(err))
}

func (s *etcdStoreSuite) TestGetPrefix() {
	store := s.newStore()
	defer func() {
		s.Require().NoError(store.Close())
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Require().NoError(store.Put(ctx, "/prefix/a", "1"))
	s.Require().NoError(store.Put(ctx, "/prefix/b", "2"))
	s.Require().NoError(store.Put(ctx, "/other/c", "3"))

	got, err := store.GetPrefix(ctx, "/prefix/")
	s.Require().NoError(err)
	s.Require().Equal(map[string]string{"/prefix/a": "1", "/prefix/b": "2"}, got)
}

func TestEtcdStoreSuite(t *testing.T) {
	suite.Run(t, new(etcdStoreSuite))
}
