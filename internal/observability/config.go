package observability

import (
	nethttp "net/http"
	"net/http/pprof"
)

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	EnablePprof bool
}

// PprofPrefix is where profiling handlers are mounted.
const PprofPrefix = "/debug/pprof/"

// Register mounts the enabled handlers on mux. It reports whether anything
// was mounted.
func (c Config) Register(mux *nethttp.ServeMux) bool {
	if !c.EnablePprof || mux == nil {
		return false
	}
	mux.HandleFunc(PprofPrefix, pprof.Index)
	mux.HandleFunc(PprofPrefix+"cmdline", pprof.Cmdline)
	mux.HandleFunc(PprofPrefix+"profile", pprof.Profile)
	mux.HandleFunc(PprofPrefix+"symbol", pprof.Symbol)
	mux.HandleFunc(PprofPrefix+"trace", pprof.Trace)
	return true
}
