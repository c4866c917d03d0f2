package api

import (
	"context"
	"errors"

	pkgerrors "github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/trainer"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

func statusEndpoint(svc trainer.Service) endpoint.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req, ok := request.(statusReq)
		if !ok {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return statusResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		return statusResponse{
			Info: svc.Info(),
		}, nil
	}
}

func listRunsEndpoint(svc trainer.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRunsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListRuns(ctx, req.offset, req.limit)
		if err != nil {
			return listRunsResponse{}, err
		}

		return listRunsResponse{
			RunPage: page,
		}, nil
	}
}

func getRunEndpoint(svc trainer.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return runResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return runResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		r, err := svc.GetRun(ctx, req.id)
		if err != nil {
			return runResponse{}, err
		}

		return runResponse{
			Run: r,
		}, nil
	}
}
