package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/journal"
	"WalletBridge/internal/observability/metrics"
	"WalletBridge/internal/service"
	"WalletBridge/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Server 负责暴露 REST 接口。
type Server struct {
	addr    string
	service *service.Service
	logger  *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, svc *service.Service) *Server {
	return &Server{addr: addr, service: svc, logger: logger.Named("api")}
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chains", s.handleChains)
	mux.HandleFunc("POST /api/v1/wallet/connect", s.handleConnect)
	mux.HandleFunc("GET /api/v1/wallet/accounts", s.handleAccounts)
	mux.HandleFunc("POST /api/v1/contracts/execute", s.handleExecute)
	mux.HandleFunc("GET /api/v1/invocations", s.handleListInvocations)
	mux.HandleFunc("GET /api/v1/invocations/stats", s.handleInvocationStats)
	mux.HandleFunc("GET /api/v1/invocations/{id}", s.handleInvocationDetail)
	mux.Handle("GET /metrics", metrics.Handler())
	return withMetrics(mux)
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type chainsResponse struct {
	Default string   `json:"default"`
	Chains  []string `json:"chains"`
}

func (s *Server) handleChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, chainsResponse{Default: s.service.DefaultChain(), Chains: s.service.Chains()})
}

type connectRequest struct {
	Chain string `json:"chain"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err, nil)
			return
		}
	}
	if req.Chain == "" {
		req.Chain = r.URL.Query().Get("chain")
	}
	result, err := s.service.Connect(r.Context(), req.Chain)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Accounts(r.URL.Query().Get("chain"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req service.ExecuteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err, nil)
		return
	}
	inv, err := s.service.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err, inv)
		return
	}
	status := http.StatusOK
	if inv.Status == journal.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, inv)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := journal.ListOptions{
		Status: journal.Status(query.Get("status")),
		Chain:  query.Get("chain"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须是正整数"), nil)
			return
		}
		opts.Limit = limit
	}
	list, err := s.service.Invocations(r.Context(), opts)
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleInvocationStats(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	stats, err := s.service.Stats(r.Context(), journal.ListOptions{
		Status: journal.Status(query.Get("status")),
		Chain:  query.Get("chain"),
	})
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleInvocationDetail(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.Invocation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error      errorBody           `json:"error"`
	Invocation *journal.Invocation `json:"invocation,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error, inv *journal.Invocation) {
	status := xerrors.HTTPStatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败", slog.Any("error", err))
	}
	message := err.Error()
	if coded, ok := xerrors.From(err); ok {
		message = coded.Message()
	}
	writeJSON(w, status, errorResponse{
		Error:      errorBody{Code: string(xerrors.CodeOf(err)), Message: message},
		Invocation: inv,
	})
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withMetrics 记录每个路由的请求数与耗时。
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(route, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
