package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const CTJSON string = "application/json"

type SDK interface {
	// Status returns the state of the trainer rank.
	//
	// example:
	//  status, _ := sdk.Status()
	//  fmt.Println(status.Status, status.CurrentEpoch)
	Status() (Status, error)

	// GetRun gets a training attempt by id.
	//
	// example:
	//  r, _ := sdk.GetRun("01936f7e-5a1c-7d3e-9b8a-6c2f4e1d0a9b")
	//  fmt.Println(r)
	GetRun(id string) (Run, error)

	// ListRuns lists training attempts in the order they started.
	//
	// example:
	//  page, _ := sdk.ListRuns(0, 10)
	//  fmt.Println(page)
	ListRuns(offset uint64, limit uint64) (RunPage, error)
}

type trainSDK struct {
	trainerURL string
	client     *http.Client
}

type Config struct {
	TrainerURL      string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &trainSDK{
		trainerURL: cfg.TrainerURL,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *trainSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Err string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Err != "" {
			return []byte{}, fmt.Errorf("unexpected response code: %d: %s", resp.StatusCode, e.Err)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}
