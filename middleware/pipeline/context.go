package pipeline

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dimfeld/httppath"
)

const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"
)

// Chaves de anotação conhecidas.
const (
	AnnotationSubject   = "subject"
	AnnotationRole      = "role"
	AnnotationRoute     = "route"
	AnnotationRateLimit = "ratelimit"
)

// DerivedHeaders são calculados pelo gateway. Valores enviados pelo cliente com
// esses nomes nunca chegam ao upstream.
var DerivedHeaders = []string{HeaderUserID, HeaderUserRole}

// RequestContext é o snapshot de uma requisição mais o conjunto de anotações
// que os stages vão preenchendo. Pertence a uma única invocação do Pipeline e
// não é compartilhado entre goroutines.
type RequestContext struct {
	ID     string
	Method string
	// Path é o path decodificado e já normalizado (sem "." e ".."). Public
	// paths e rotas casam contra ele.
	Path string
	// EscapedPath é a forma codificada de Path, usada na URL do upstream para
	// não perder %2F e afins.
	EscapedPath string
	RawQuery    string
	RemoteAddr  string
	// ClientAddr é o host de RemoteAddr, sem porta.
	ClientAddr string
	Public     bool
	// Received é o início da requisição no relógio do Pipeline.
	Received time.Time

	header      http.Header
	annotations map[string]string
	derived     http.Header
	response    http.Header
}

func NewRequestContext(r *http.Request, id string) *RequestContext {
	path, escaped := cleanPath(r.URL)
	return &RequestContext{
		ID:          id,
		Method:      r.Method,
		Path:        path,
		EscapedPath: escaped,
		RawQuery:    r.URL.RawQuery,
		RemoteAddr:  r.RemoteAddr,
		ClientAddr:  hostOnly(r.RemoteAddr),
		Received:    time.Now(),
		header:      r.Header.Clone(),
		annotations: make(map[string]string),
		derived:     make(http.Header),
		response:    make(http.Header),
	}
}

// Header devolve o valor do header de entrada (case-insensitive).
func (rc *RequestContext) Header(name string) string {
	return rc.header.Get(name)
}

// HeaderValues devolve todos os valores (ex: X-Forwarded-For repetido).
func (rc *RequestContext) HeaderValues(name string) []string {
	return rc.header.Values(name)
}

func (rc *RequestContext) Annotate(key, value string) {
	rc.annotations[key] = value
}

func (rc *RequestContext) Annotation(key string) string {
	return rc.annotations[key]
}

func (rc *RequestContext) Annotations() map[string]string {
	out := make(map[string]string, len(rc.annotations))
	for k, v := range rc.annotations {
		out[k] = v
	}
	return out
}

// SetDerivedHeader grava um header que será enviado ao upstream, sobrescrevendo
// qualquer valor homônimo vindo do cliente.
func (rc *RequestContext) SetDerivedHeader(name, value string) {
	rc.derived.Set(name, value)
}

// UpstreamHeader é a visão dos headers que segue para o upstream: os de entrada
// sem os DerivedHeaders do cliente, mais os derivados pelo gateway.
func (rc *RequestContext) UpstreamHeader() http.Header {
	h := rc.header.Clone()
	rc.ApplyDerivedHeaders(h)
	return h
}

// ApplyDerivedHeaders aplica a mesma regra de UpstreamHeader sobre h.
func (rc *RequestContext) ApplyDerivedHeaders(h http.Header) {
	for _, name := range DerivedHeaders {
		h.Del(name)
	}
	for name, values := range rc.derived {
		h[name] = append([]string(nil), values...)
	}
}

// ResponseHeader acumula headers que vão na resposta final, seja ela um
// Reject ou a resposta do upstream (ex: X-RateLimit-Remaining).
func (rc *RequestContext) ResponseHeader() http.Header {
	return rc.response
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// cleanPath resolve "." e ".." e barras repetidas nas duas formas do path.
// Se a forma codificada esconde dot segments (ex: %2e%2e), ela deixa de
// corresponder ao path limpo e é recodificada a partir dele.
func cleanPath(u *url.URL) (path, escaped string) {
	path = httppath.Clean(u.Path)
	escaped = httppath.Clean(u.EscapedPath())
	if dec, err := url.PathUnescape(escaped); err != nil || dec != path {
		escaped = (&url.URL{Path: path}).EscapedPath()
	}
	return path, escaped
}
