package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"msgledger/pkg/cache"
	"msgledger/pkg/ledger"
	"msgledger/pkg/resolve"
	"msgledger/pkg/store"
	"msgledger/pkg/utils"
)

// Deps are the shared state objects the read API serves from.
type Deps struct {
	Cache    *cache.Cache
	Ledger   *ledger.Ledger
	Resolver *resolve.Resolver
}

// Handler returns the read-side router consumed by the rendering
// collaborator.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/v1/messages", func(w http.ResponseWriter, req *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, d.Cache.Snapshot())
	}).Methods(http.MethodGet)

	// ledger attribution is computed here, at read time: displayed names
	// may improve as alias data arrives after the deletion was recorded
	r.HandleFunc("/v1/ledger", func(w http.ResponseWriter, req *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, d.Resolver.Render(d.Ledger.Entries()))
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/ledger/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		if !d.Ledger.Remove(id) {
			utils.JSONError(w, http.StatusNotFound, "no ledger entry for id")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
