package transport

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v3"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/streamhouse/flowcore/barrier"
	"github.com/streamhouse/flowcore/chunk"
	"github.com/streamhouse/flowcore/cmn/cos"
	"github.com/streamhouse/flowcore/cmn/debug"
	"github.com/streamhouse/flowcore/cmn/nlog"
)

// Compression mirrors the teacher's Extra.Compression enum
// (transport/bundle): either every outbound frame is LZ4-compressed, or
// none ever is. There is no per-frame heuristic.
type Compression int

const (
	CompressNever Compression = iota
	CompressAlways
)

const (
	frameKindChunk   byte = 1
	frameKindBarrier byte = 2
)

// Remote compacts, optionally compresses, and pushes each frame to the
// peer's Server endpoint synchronously on the calling goroutine (spec.md
// §4.1's "opaque writer", made concrete); it has no egress queue and no
// background goroutine. Up/Down name the logical edge; Addr is the peer's listen
// address for the HTTP endpoint registered by NewServer.
type Remote struct {
	up, down string
	addr     string
	path     string
	compress Compression
	client   *fasthttp.Client

	mu     sync.Mutex
	closed bool
}

// NewRemote constructs a shipper for the (up, down) edge that POSTs
// encoded frames to http://addr/path. The caller owns the actual send
// calls; there is no internal queue goroutine because fasthttp.Client is
// itself safe for concurrent synchronous use and the actor runtime
// already guarantees at most one outstanding send per edge at a time
// (the read-then-forward-before-next-read discipline of spec.md §4.2).
func NewRemote(up, down, addr, path string, compress Compression) *Remote {
	return &Remote{
		up:       up,
		down:     down,
		addr:     addr,
		path:     path,
		compress: compress,
		client:   &fasthttp.Client{Name: "flowcore-transport"},
	}
}

func (r *Remote) Up() string   { return r.up }
func (r *Remote) Down() string { return r.down }

func (r *Remote) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Remote) SendChunk(c *chunk.StreamChunk) error {
	if r.isClosed() {
		return cos.NewErrProtocolViolation("remote transport %s->%s: send after close", r.up, r.down)
	}
	// Physically drop invisible rows before the wire: a remote peer has
	// no use for rows the visibility bitmap already hid (spec.md §4.1).
	if c.Cardinality() != c.VisibleCount() {
		c = c.Compact()
	}
	payload, err := chunk.Encode(c)
	if err != nil {
		return err
	}
	return r.ship(frameKindChunk, payload)
}

func (r *Remote) SendBarrier(b barrier.Barrier) error {
	if r.isClosed() {
		return cos.NewErrProtocolViolation("remote transport %s->%s: send after close", r.up, r.down)
	}
	payload, err := barrier.Encode(b)
	if err != nil {
		return err
	}
	return r.ship(frameKindBarrier, payload)
}

func (r *Remote) ship(kind byte, payload []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.B = append(buf.B, kind)
	if r.compress == CompressAlways {
		buf.B = append(buf.B, 1)
		compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
		var ht [1 << 16]int
		n, err := lz4.CompressBlock(payload, compressed, ht[:])
		if err != nil {
			return fmt.Errorf("transport: lz4 compress: %w", err)
		}
		if n == 0 {
			// incompressible: lz4 signals this by returning n == 0
			buf.B[len(buf.B)-1] = 0
			buf.B = append(buf.B, payload...)
		} else {
			buf.B = append(buf.B, compressed[:n]...)
		}
	} else {
		buf.B = append(buf.B, 0)
		buf.B = append(buf.B, payload...)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("http://%s/%s/%s/%s", r.addr, r.path, r.up, r.down))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBody(buf.B)

	if err := r.client.Do(req, resp); err != nil {
		return fmt.Errorf("transport: ship to %s: %w", r.addr, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("transport: peer %s rejected frame: status %d", r.addr, resp.StatusCode())
	}
	return nil
}

// NewServer builds a fasthttp handler that decodes inbound frames and
// passes them to deliver, which the caller wires to the local registry
// (kept decoupled so transport has no hard dependency on routing's
// internal registry type).
func NewServer(path string, deliver func(up, down string, c *chunk.StreamChunk, b *barrier.Barrier) error) *fasthttp.Server {
	prefix := "/" + path + "/"
	handler := func(ctx *fasthttp.RequestCtx) {
		uri := string(ctx.Path())
		if len(uri) <= len(prefix) {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		rest := uri[len(prefix):]
		up, down, ok := splitPair(rest)
		if !ok {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		body := ctx.PostBody()
		if len(body) < 2 {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		kind, compressed, payload := body[0], body[1] == 1, body[2:]
		if compressed {
			decompressed := make([]byte, 0, len(payload)*4)
			decompressed = decompressed[:cap(decompressed)]
			n, err := lz4.UncompressBlock(payload, decompressed)
			if err != nil {
				nlog.Errorf("transport: lz4 decompress from %s->%s: %v", up, down, err)
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				return
			}
			payload = decompressed[:n]
		}
		switch kind {
		case frameKindChunk:
			c, err := chunk.Decode(payload)
			if err != nil {
				nlog.Errorf("transport: decode chunk %s->%s: %v", up, down, err)
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				return
			}
			if err := deliver(up, down, c, nil); err != nil {
				nlog.Errorf("transport: deliver chunk %s->%s: %v", up, down, err)
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				return
			}
		case frameKindBarrier:
			b, err := barrier.Decode(payload)
			if err != nil {
				nlog.Errorf("transport: decode barrier %s->%s: %v", up, down, err)
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				return
			}
			if err := deliver(up, down, nil, &b); err != nil {
				nlog.Errorf("transport: deliver barrier %s->%s: %v", up, down, err)
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				return
			}
		default:
			debug.Assertf(false, "transport: unknown frame kind %d", kind)
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	}
	return &fasthttp.Server{Handler: handler, Name: "flowcore-transport"}
}

func splitPair(rest string) (up, down string, ok bool) {
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], true
		}
	}
	return "", "", false
}
