package harbor

import "sync"

// Pool holds the sync.Pools that back Harbor's per-dispatch scratch
// allocations: a TransformerCache for each HTTP/WebSocket dispatch, and a
// ByteBuffer for WebSocket frame encode/decode scratch space. Adapted from
// the teacher's own Pool, repurposed away from its Context/Request/
// Response/URI/Cookie pools since those are rebuilt fresh per request here
// (see harbor.go's ServeHTTP and wsconn.go's dispatchMessage).
type Pool struct {
	transformerCachePool *sync.Pool
	byteBufferPool       *sync.Pool
}

// newPool returns a Pool ready for use.
func newPool() *Pool {
	return &Pool{
		transformerCachePool: &sync.Pool{
			New: func() interface{} {
				return NewTransformerCache()
			},
		},
		byteBufferPool: &sync.Pool{
			New: func() interface{} {
				return NewByteBuffer(nil)
			},
		},
	}
}

// TransformerCache returns a cleared TransformerCache from p.
func (p *Pool) TransformerCache() *TransformerCache {
	c := p.transformerCachePool.Get().(*TransformerCache)
	c.values = make(map[transformerCacheKey]interface{})

	return c
}

// ByteBuffer returns a reset ByteBuffer from p.
func (p *Pool) ByteBuffer() *ByteBuffer {
	b := p.byteBufferPool.Get().(*ByteBuffer)
	b.Reset()

	return b
}

// Put returns x to its pool.
func (p *Pool) Put(x interface{}) {
	switch v := x.(type) {
	case *TransformerCache:
		p.transformerCachePool.Put(v)
	case *ByteBuffer:
		p.byteBufferPool.Put(v)
	}
}
