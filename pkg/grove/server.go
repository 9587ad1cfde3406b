package grove

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/acorndb/pkg/acorn"
	"github.com/cuemby/acorndb/pkg/log"
)

// describeTree is the wire shape for one entry of GET /describe's trees list.
type describeTree struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	NutCount int    `json:"nut_count"`
	IsRemote bool   `json:"is_remote"`
}

// describeTangle is the wire shape for one entry of GET /describe's tangles list.
type describeTangle struct {
	FromTreeID string `json:"from_tree_id"`
	ToTreeID   string `json:"to_tree_id"`
	URL        string `json:"url"`
}

type describeResponse struct {
	Trees   []describeTree   `json:"trees"`
	Tangles []describeTangle `json:"tangles"`
}

// Handler builds the HTTP surface described for an exposed Grove node:
// stash/toss/crack per type+id, a shake trigger, and a topology descriptor.
// Route registration follows net/http's method-and-pattern mux syntax.
func (g *Grove) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stash/{type}/{id}", g.handleStash)
	mux.HandleFunc("POST /toss/{type}/{id}", g.handleToss)
	mux.HandleFunc("GET /crack/{type}/{id}", g.handleCrack)
	mux.HandleFunc("GET /shake", g.handleShake)
	mux.HandleFunc("GET /describe", g.handleDescribe)
	return mux
}

func (g *Grove) handleStash(w http.ResponseWriter, r *http.Request) {
	typeName := r.PathValue("type")
	id := r.PathValue("id")
	if typeName == "" || id == "" {
		http.Error(w, "missing type or id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if err := g.TryStash(typeName, id, json.RawMessage(body)); err != nil {
		writeStashError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeStashError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, acorn.ErrNotFound), errors.Is(err, acorn.ErrTypeMismatch):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, acorn.ErrPolicyDenied), errors.Is(err, acorn.ErrConflictRejected):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.WithComponent("grove").Error().Err(err).Msg("stash failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (g *Grove) handleToss(w http.ResponseWriter, r *http.Request) {
	typeName := r.PathValue("type")
	id := r.PathValue("id")
	if typeName == "" || id == "" {
		http.Error(w, "missing type or id", http.StatusBadRequest)
		return
	}

	existed, err := g.TryToss(typeName, id)
	if err != nil {
		if errors.Is(err, acorn.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.WithComponent("grove").Error().Err(err).Msg("toss failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !existed {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Grove) handleCrack(w http.ResponseWriter, r *http.Request) {
	typeName := r.PathValue("type")
	id := r.PathValue("id")
	if typeName == "" || id == "" {
		http.Error(w, "missing type or id", http.StatusBadRequest)
		return
	}

	payload, ok, err := g.TryCrack(typeName, id)
	if err != nil {
		if errors.Is(err, acorn.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.WithComponent("grove").Error().Err(err).Msg("crack failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (g *Grove) handleShake(w http.ResponseWriter, r *http.Request) {
	swept, err := g.ShakeAll()
	if err != nil {
		log.WithComponent("grove").Error().Err(err).Msg("shake failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "shook %d entries\n", swept)
}

func (g *Grove) handleDescribe(w http.ResponseWriter, r *http.Request) {
	infos := g.GetTreeInfo()
	trees := make([]describeTree, 0, len(infos))
	for _, info := range infos {
		trees = append(trees, describeTree{ID: info.TypeName, Type: info.TypeName, NutCount: info.NutCount, IsRemote: info.IsRemote})
	}

	tangles := g.GetTangleStats()
	out := make([]describeTangle, 0, len(tangles))
	for _, t := range tangles {
		out = append(out, describeTangle{FromTreeID: t.FromTreeID, ToTreeID: t.ToTreeID, URL: t.URL})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(describeResponse{Trees: trees, Tangles: out})
}
