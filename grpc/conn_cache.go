package grpc

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"go.viam.com/sensorhub/logging"
)

// DefaultConnCacheSize is the number of peers a ConnCache stays connected to.
const DefaultConnCacheSize = 64

// ConnCache keeps client connections to the most recently used peers. A connection leaves the
// cache when it is evicted or forgotten, and is closed once every caller holding it has released
// it.
type ConnCache struct {
	callTimeout time.Duration
	logger      logging.Logger
	opts        []grpc.DialOption

	// mu guards conns and the reference counts of every connection handed out.
	mu    sync.Mutex
	conns *lru.Cache[string, *cachedConn]
}

type cachedConn struct {
	address string
	conn    *grpc.ClientConn
	refs    int
	dropped bool
}

// NewConnCache returns a cache of up to size connections dialed with Dial.
func NewConnCache(size int, callTimeout time.Duration, logger logging.Logger, opts ...grpc.DialOption) (*ConnCache, error) {
	if size <= 0 {
		size = DefaultConnCacheSize
	}
	cache := &ConnCache{callTimeout: callTimeout, logger: logger, opts: opts}
	// eviction runs inside Add, Remove and Purge, which are only called with mu held.
	conns, err := lru.NewWithEvict(size, func(address string, cc *cachedConn) {
		cc.dropped = true
		cache.closeIfUnused(cc)
	})
	if err != nil {
		return nil, err
	}
	cache.conns = conns
	return cache, nil
}

// Get returns a connection to address, dialing it if needed, and a release function to call
// once the caller is done with it. The connection stays open until released even if the cache
// drops it meanwhile. Releasing more than once has no further effect.
func (c *ConnCache) Get(address string) (*grpc.ClientConn, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns == nil {
		return nil, nil, errors.New("connection cache is closed")
	}
	cc, ok := c.conns.Get(address)
	if !ok {
		conn, err := Dial(address, c.callTimeout, c.logger, c.opts...)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to dial %q", address)
		}
		cc = &cachedConn{address: address, conn: conn}
		c.conns.Add(address, cc)
	}
	cc.refs++

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			cc.refs--
			c.closeIfUnused(cc)
		})
	}
	return cc.conn, release, nil
}

// closeIfUnused closes a dropped connection nobody holds anymore. mu must be held.
func (c *ConnCache) closeIfUnused(cc *cachedConn) {
	if !cc.dropped || cc.refs > 0 {
		return
	}
	if err := cc.conn.Close(); err != nil {
		c.logger.Debugw("error closing dropped connection", "address", cc.address, "error", err)
	}
}

// Forget drops the connection to address, if any.
func (c *ConnCache) Forget(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns != nil {
		c.conns.Remove(address)
	}
}

// Len returns the number of cached connections.
func (c *ConnCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns == nil {
		return 0
	}
	return c.conns.Len()
}

// Close drops every cached connection. The cache cannot be used afterwards; connections still
// held are closed when released.
func (c *ConnCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns != nil {
		c.conns.Purge()
		c.conns = nil
	}
	return nil
}
