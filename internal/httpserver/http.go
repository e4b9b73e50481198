package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

type HttpMethod string

var (
	MethodGet   HttpMethod = http.MethodGet
	MethodPatch HttpMethod = http.MethodPatch
)

type HttpServer struct {
	router *httprouter.Router

	listenAddr string
	// CertFile and KeyFile switch the listener to TLS when both are set.
	CertFile string
	KeyFile  string

	server *http.Server
	addr   net.Addr
	done   chan struct{}
	lock   sync.Mutex

	Log                 logrus.FieldLogger
	GeneralErrorHandler func(err error)
}

func NewHttpServer(addr string) *HttpServer {
	return &HttpServer{
		router:     httprouter.New(),
		listenAddr: addr,
		Log:        logrus.StandardLogger(),
	}
}

func (h *HttpServer) Add(method HttpMethod, path string, handler HttpHandler) {
	h.router.Handle(newHandle(method, path, handler, h.handleError))
}

// Startup binds the listener and serves in the background.
func (h *HttpServer) Startup() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.server != nil {
		return errors.New("http server already started")
	}
	ln, err := net.Listen("tcp", h.listenAddr)
	if err != nil {
		return err
	}
	h.addr = ln.Addr()
	h.server = &http.Server{
		Addr:    h.listenAddr,
		Handler: h.router,
	}
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		var err error
		if h.CertFile != "" && h.KeyFile != "" {
			err = h.server.ServeTLS(ln, h.CertFile, h.KeyFile)
		} else {
			err = h.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.Log.Errorln("http server:", err)
		}
	}()
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (h *HttpServer) Addr() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.addr == nil {
		return h.listenAddr
	}
	return h.addr.String()
}

func (h *HttpServer) Stop(ctx context.Context) error {
	h.lock.Lock()
	server, done := h.server, h.done
	h.lock.Unlock()
	if server == nil {
		return nil
	}
	err := server.Shutdown(ctx)
	<-done
	return err
}

// Wait blocks until the server stopped serving.
func (h *HttpServer) Wait() {
	h.lock.Lock()
	done := h.done
	h.lock.Unlock()
	if done != nil {
		<-done
	}
}

func (h *HttpServer) handleError(err error) {
	if h.GeneralErrorHandler != nil {
		h.GeneralErrorHandler(err)
		return
	}
	h.Log.Errorln("http handler:", err)
}

func newHandle(m HttpMethod, p string, h HttpHandler, ef func(err error)) (method, path string, handle httprouter.Handle) {
	return string(m), p, func(writer http.ResponseWriter, request *http.Request, params httprouter.Params) {
		r, err := h(request, params)
		if err != nil {
			ef(err)
			writer.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := r.Render(writer); err != nil {
			ef(err)
		}
	}
}
