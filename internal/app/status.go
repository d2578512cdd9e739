package app

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"flatwatch/internal/listing"
)

// StatusSource — то, что status API читает у цикла опроса.
type StatusSource interface {
	State() State
	ConsecutiveFailures() int
	Cycles() int64
	LastResult() *CycleResult
}

// KnownSource — записи, отправленные за время жизни процесса.
type KnownSource interface {
	Known() []listing.Listing
}

type cycleView struct {
	CycleResult
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`
}

type healthView struct {
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Cycles              int64      `json:"cycles"`
	LastCycle           *cycleView `json:"last_cycle"`
}

// NewStatusHandler: GET /healthz, GET /listings, GET /listings/{id}.
func NewStatusHandler(status StatusSource, known KnownSource) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		view := healthView{
			State:               status.State().String(),
			ConsecutiveFailures: status.ConsecutiveFailures(),
			Cycles:              status.Cycles(),
		}
		if last := status.LastResult(); last != nil {
			cv := &cycleView{CycleResult: *last}
			if last.Err != nil {
				cv.Kind = last.Kind.String()
				cv.Error = last.Err.Error()
			}
			view.LastCycle = cv
		}

		code := http.StatusOK
		if status.State() == StateStopped {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, view)
	}).Methods(http.MethodGet)

	r.HandleFunc("/listings", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, known.Known())
	}).Methods(http.MethodGet)

	r.HandleFunc("/listings/{id:[0-9]+}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
			return
		}
		for _, l := range known.Known() {
			if l.ID == id {
				writeJSON(w, http.StatusOK, l)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "listing not found"})
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
