package sdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	statusEndpoint = "/status"
	runsEndpoint   = "/runs"
)

type TrainingConfig struct {
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	Patience     int     `json:"patience"`
	MaxRetries   int     `json:"max_retries"`
	BackoffUnit  int64   `json:"backoff_unit"`
	Weighting    string  `json:"weighting"`
}

type Status struct {
	JobID         string         `json:"job_id"`
	Rank          int            `json:"rank"`
	WorldSize     int            `json:"world_size"`
	LocalDataSize int            `json:"local_data_size"`
	TotalDataSize int            `json:"total_data_size"`
	Config        TrainingConfig `json:"config"`
	Status        string         `json:"status"`
	CurrentEpoch  int            `json:"current_epoch"`
	Attempts      int            `json:"attempts"`
	GlobalLoss    float64        `json:"global_loss"`
	LastError     string         `json:"last_error,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type Run struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	Name         string    `json:"name"`
	Rank         int       `json:"rank"`
	WorldSize    int       `json:"world_size"`
	Attempt      int       `json:"attempt"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	EpochsRun    int       `json:"epochs_run"`
	GlobalLoss   float64   `json:"global_loss"`
	BestLoss     float64   `json:"best_loss"`
	EarlyStopped bool      `json:"early_stopped"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RunPage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Runs   []Run  `json:"runs"`
}

func (sdk *trainSDK) Status() (Status, error) {
	url := sdk.trainerURL + statusEndpoint

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Status{}, err
	}

	var s Status
	if err := json.Unmarshal(body, &s); err != nil {
		return Status{}, err
	}

	return s, nil
}

func (sdk *trainSDK) GetRun(id string) (Run, error) {
	url := sdk.trainerURL + runsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return Run{}, err
	}

	var r Run
	if err := json.Unmarshal(body, &r); err != nil {
		return Run{}, err
	}

	return r, nil
}

func (sdk *trainSDK) ListRuns(offset, limit uint64) (RunPage, error) {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	query := ""
	if len(queries) > 0 {
		query = "?" + strings.Join(queries, "&")
	}
	url := sdk.trainerURL + runsEndpoint + query

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return RunPage{}, err
	}

	var page RunPage
	if err := json.Unmarshal(body, &page); err != nil {
		return RunPage{}, err
	}

	return page, nil
}
