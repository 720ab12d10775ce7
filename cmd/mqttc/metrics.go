package main

import (
	"expvar"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func newMetricsRouter() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

func newMetricsServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           newMetricsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
