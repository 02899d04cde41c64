package littlewebserver

import "sync"

// objectPool holds the reusable, per-connection-cycle object pools used by
// a Server, following the shape of the teacher's Pool. There is no separate
// context pool: unlike the teacher's Context, a Request carries its own
// Server reference directly (spec §9 Design Notes), so pooling Request and
// Response is enough.
type objectPool struct {
	requestPool  sync.Pool
	responsePool sync.Pool
}

func newObjectPool() *objectPool {
	p := &objectPool{}
	p.requestPool.New = func() interface{} { return &Request{} }
	p.responsePool.New = func() interface{} { return &Response{} }
	return p
}

func (p *objectPool) getRequest() *Request {
	return p.requestPool.Get().(*Request)
}

func (p *objectPool) putRequest(r *Request) {
	r.reset()
	p.requestPool.Put(r)
}

func (p *objectPool) getResponse() *Response {
	return p.responsePool.Get().(*Response)
}

func (p *objectPool) putResponse(r *Response) {
	r.reset()
	p.responsePool.Put(r)
}
