package api

import (
	"net/http"

	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*runResponse)(nil)
	_ supermq.Response = (*listRunsResponse)(nil)
)

type statusResponse struct {
	trainer.Info
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type runResponse struct {
	run.Run
}

func (r runResponse) Code() int {
	return http.StatusOK
}

func (r runResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r runResponse) Empty() bool {
	return false
}

type listRunsResponse struct {
	run.RunPage
}

func (l listRunsResponse) Code() int {
	return http.StatusOK
}

func (l listRunsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRunsResponse) Empty() bool {
	return false
}
