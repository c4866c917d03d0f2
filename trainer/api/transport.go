package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/absmach/disttrain/pkg/api"
	"github.com/absmach/disttrain/trainer"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MakeHandler exposes the read-only view of one rank: its status, its run
// history, liveness and Prometheus metrics.
func MakeHandler(svc trainer.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		statusEndpoint(svc),
		decodeStatusReq,
		api.EncodeResponse,
		opts...,
	), "get-status").ServeHTTP)

	mux.Route("/runs", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listRunsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-runs").ServeHTTP)
		r.Get("/{runID}", otelhttp.NewHandler(kithttp.NewServer(
			getRunEndpoint(svc),
			decodeEntityReq("runID"),
			api.EncodeResponse,
			opts...,
		), "get-run").ServeHTTP)
	})

	mux.Get("/health", supermq.Health("disttrain-trainer", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeStatusReq(_ context.Context, _ *http.Request) (any, error) {
	return statusReq{}, nil
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}
