// Pacote httpapi expõe as enquetes locais em JSON para a camada de apresentação.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/marcelojr/enquetes/internal/domain"
)

// PollService é o subconjunto de polls.Service usado pelos handlers.
type PollService interface {
	Nick() string
	NewBlank() domain.Poll
	Create(title, question string, options []string, maxVoters int) domain.Poll
	Save(ctx context.Context, draft domain.Poll) (domain.Poll, error)
	List(ctx context.Context) ([]domain.Summary, error)
	Get(ctx context.Context, id domain.PollID) (domain.Poll, error)
	Results(ctx context.Context, id domain.PollID) ([]domain.Result, error)
	Vote(ctx context.Context, id domain.PollID, choice int) (domain.Poll, error)
	Close(ctx context.Context, id domain.PollID, requester string) (domain.Poll, error)
	Delete(ctx context.Context, id domain.PollID, requester string) error
}

// Sharing é a sessão de compartilhamento, quando houver uma.
type Sharing interface {
	Refresh(ctx context.Context) error
	Peers() map[domain.PeerID]string
}

type API struct {
	service PollService
	sharing Sharing
	logger  *slog.Logger
}

func New(service PollService, logger *slog.Logger) *API {
	return &API{service: service, logger: logger}
}

// WithSharing habilita as rotas /sync; sem sessão elas respondem 503.
func (a *API) WithSharing(s Sharing) *API {
	a.sharing = s
	return a
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/polls", a.handlePolls)
	mux.HandleFunc("/polls/", a.handlePollDetalhes)
	mux.HandleFunc("/sync/", a.handleSync)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) handlePolls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listarEnquetes(w, r)
	case http.MethodPost:
		a.criarEnquete(w, r)
	default:
		http.Error(w, "metodo nao suportado", http.StatusMethodNotAllowed)
	}
}

func (a *API) handlePollDetalhes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/polls/")
	partes := strings.Split(path, "/")
	if len(partes) == 0 || partes[0] == "" {
		http.NotFound(w, r)
		return
	}

	if partes[0] == "blank" && len(partes) == 1 && r.Method == http.MethodGet {
		responderJSON(w, http.StatusOK, toPollResponse(a.service.NewBlank()))
		return
	}

	id := domain.PollID(partes[0])

	switch {
	case len(partes) == 1 && r.Method == http.MethodGet:
		a.obterEnquete(w, r, id)
	case len(partes) == 1 && r.Method == http.MethodDelete:
		a.removerEnquete(w, r, id)
	case len(partes) == 2 && partes[1] == "results" && r.Method == http.MethodGet:
		a.obterResultados(w, r, id)
	case len(partes) == 2 && partes[1] == "votes" && r.Method == http.MethodPost:
		a.votar(w, r, id)
	case len(partes) == 2 && partes[1] == "close" && r.Method == http.MethodPost:
		a.encerrar(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if a.sharing == nil {
		responderJSON(w, http.StatusServiceUnavailable, map[string]string{"erro": "compartilhamento indisponivel"})
		return
	}
	switch {
	case r.URL.Path == "/sync/peers" && r.Method == http.MethodGet:
		peers := a.sharing.Peers()
		resp := make([]peerResponse, 0, len(peers))
		for id, nick := range peers {
			resp = append(resp, toPeerResponse(id, nick))
		}
		responderJSON(w, http.StatusOK, resp)
	case r.URL.Path == "/sync/refresh" && r.Method == http.MethodPost:
		if err := a.sharing.Refresh(r.Context()); err != nil {
			a.logger.Warn("falha ao pedir enquetes aos pares", "err", err)
			responderJSON(w, http.StatusBadGateway, map[string]string{"erro": err.Error()})
			return
		}
		responderJSON(w, http.StatusAccepted, map[string]string{"status": "solicitado"})
	default:
		http.NotFound(w, r)
	}
}

func (a *API) listarEnquetes(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.service.List(r.Context())
	if err != nil {
		a.logger.Error("erro ao listar enquetes", "err", err)
		responderErro(w, err)
		return
	}

	resp := make([]summaryResponse, len(summaries))
	for i, s := range summaries {
		resp[i] = toSummaryResponse(s)
	}
	responderJSON(w, http.StatusOK, resp)
}

type criarRequest struct {
	Title     string   `json:"title"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	MaxVoters int      `json:"max_voters"`
}

func (a *API) criarEnquete(w http.ResponseWriter, r *http.Request) {
	var req criarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Warn("payload invalido ao criar enquete", "err", err)
		http.Error(w, "payload invalido", http.StatusBadRequest)
		return
	}
	if len(req.Options) > domain.MaxOptions {
		responderJSON(w, http.StatusBadRequest, map[string]string{"erro": "no maximo 5 alternativas"})
		return
	}

	draft := a.service.Create(req.Title, req.Question, req.Options, req.MaxVoters)
	saved, err := a.service.Save(r.Context(), draft)
	if err != nil {
		a.logger.Warn("falha ao salvar enquete", "err", err, "titulo", req.Title)
		responderErro(w, err)
		return
	}

	responderJSON(w, http.StatusCreated, toPollResponse(saved))
}

func (a *API) obterEnquete(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	p, err := a.service.Get(r.Context(), id)
	if err != nil {
		responderErro(w, err)
		return
	}
	responderJSON(w, http.StatusOK, toPollResponse(p))
}

func (a *API) obterResultados(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	results, err := a.service.Results(r.Context(), id)
	if err != nil {
		responderErro(w, err)
		return
	}

	resp := make([]resultResponse, len(results))
	for i, res := range results {
		resp[i] = resultResponse{Label: res.Label, Count: res.Count, Percent: res.Percent}
	}
	responderJSON(w, http.StatusOK, resp)
}

type votoRequest struct {
	Choice *int `json:"choice"`
}

func (a *API) votar(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	var req votoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Choice == nil {
		a.logger.Warn("payload invalido ao votar", "err", err)
		http.Error(w, "payload invalido", http.StatusBadRequest)
		return
	}

	p, err := a.service.Vote(r.Context(), id, *req.Choice)
	if err != nil {
		a.logger.Warn("falha ao registrar voto", "err", err, "poll", id, "alternativa", *req.Choice)
		responderErro(w, err)
		return
	}

	a.logger.Info("voto registrado", "poll", id, "alternativa", *req.Choice)
	responderJSON(w, http.StatusOK, toPollResponse(p))
}

func (a *API) encerrar(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	p, err := a.service.Close(r.Context(), id, a.service.Nick())
	if err != nil {
		responderErro(w, err)
		return
	}
	responderJSON(w, http.StatusOK, toPollResponse(p))
}

func (a *API) removerEnquete(w http.ResponseWriter, r *http.Request, id domain.PollID) {
	if err := a.service.Delete(r.Context(), id, a.service.Nick()); err != nil {
		responderErro(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func responderJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func responderErro(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"erro": err.Error()}

	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body["campos"] = validation.Fields
	case errors.Is(err, domain.ErrInvalidChoice):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthor):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPollClosed), errors.Is(err, domain.ErrAlreadyActive):
		status = http.StatusConflict
	}

	responderJSON(w, status, body)
}
