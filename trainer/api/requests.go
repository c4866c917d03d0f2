package api

import (
	"github.com/absmach/disttrain/pkg/api"
	apiutil "github.com/absmach/supermq/api/http/util"
)

type statusReq struct{}

func (s *statusReq) validate() error {
	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit < 1 || e.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}
